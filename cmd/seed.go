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
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/pulseboard/config"
	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/surveydb"
)

var seedFile string

func init() {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load profiles and submissions from a YAML fixture file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCommand("pulseboard-seed", seed)
		},
	}
	cmd.Flags().StringVar(&seedFile, "file", "fixtures.yaml", "Fixture file to load")
	rootCmd.AddCommand(cmd)
}

// Fixtures is the seed file layout.
type Fixtures struct {
	Profiles    []surveydb.Profile    `yaml:"profiles"`
	Submissions []surveydb.Submission `yaml:"submissions"`
}

func loadFixtures(r io.Reader) (*Fixtures, error) {
	var fx Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now().UTC()
	known := make(map[uuid.UUID]struct{}, len(fx.Profiles))
	for i := range fx.Profiles {
		p := &fx.Profiles[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		known[p.ID] = struct{}{}
	}
	for i := range fx.Submissions {
		s := &fx.Submissions[i]
		if _, ok := known[s.UserID]; !ok {
			return nil, fmt.Errorf("submission %d references unknown profile %s", i, s.UserID)
		}
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.SubmittedAt.IsZero() {
			s.SubmittedAt = now
		}
	}
	return &fx, nil
}

// seedStore inserts fx and announces the inserts so open views refresh.
func seedStore(ctx context.Context, w surveydb.Writer, pub changefeed.Publisher, fx *Fixtures) error {
	profileKeys := make([]string, 0, len(fx.Profiles))
	for _, p := range fx.Profiles {
		if err := w.InsertProfile(ctx, p); err != nil {
			return fmt.Errorf("insert profile %s: %w", p.ID, err)
		}
		profileKeys = append(profileKeys, p.ID.String())
	}
	submissionKeys := make([]string, 0, len(fx.Submissions))
	for _, s := range fx.Submissions {
		if err := w.InsertSubmission(ctx, s); err != nil {
			return fmt.Errorf("insert submission %s: %w", s.ID, err)
		}
		submissionKeys = append(submissionKeys, s.UserID.String())
	}
	slog.Info("Seeded store",
		slog.Int("profiles", len(fx.Profiles)),
		slog.Int("submissions", len(fx.Submissions)))

	if pub == nil {
		return nil
	}
	events := []changefeed.Event{
		{Topic: surveydb.ProfilesTable, Kind: changefeed.KindInsert, Keys: profileKeys},
		{Topic: surveydb.SubmissionsTable, Kind: changefeed.KindInsert, Keys: submissionKeys},
	}
	for _, ev := range events {
		if len(ev.Keys) == 0 {
			continue
		}
		if err := pub.Publish(ctx, ev); err != nil {
			slog.Warn("Failed to announce seeded rows", slog.String("topic", ev.Topic), slog.Any("error", err))
		}
	}
	return nil
}

func seed(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	f, err := os.Open(seedFile)
	if err != nil {
		return err
	}
	defer f.Close()
	fx, err := loadFixtures(f)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fd, err := openFeed(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := fd.close(); err != nil {
			slog.Warn("Failed to close change feed", slog.Any("error", err))
		}
	}()

	return seedStore(ctx, store, fd.publisher, fx)
}
