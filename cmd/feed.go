// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/pulseboard/config"
	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/internal/responses"
)

var syncTopicsFix bool

func init() {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Manage the change feed",
	}

	syncCmd := &cobra.Command{
		Use:   "sync-topics",
		Short: "Check or create the Kafka topics carrying change events",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCommand("pulseboard-feed", syncFeedTopics)
		},
	}
	syncCmd.Flags().BoolVar(&syncTopicsFix, "fix", false, "Create missing topics and raise partition counts")

	feedCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(feedCmd)
}

func syncFeedTopics(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Feed.Backend != config.FeedBackendKafka {
		slog.Info("Change feed backend is not kafka, nothing to sync", slog.String("backend", cfg.Feed.Backend))
		return nil
	}

	slog.Info("Syncing change feed topics",
		slog.Any("topics", responses.Topics),
		slog.Bool("fix", syncTopicsFix))
	return changefeed.NewTopicSyncer(cfg.Feed.Kafka).Sync(ctx, responses.Topics, syncTopicsFix)
}
