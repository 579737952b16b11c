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
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/pulseboard/config"
	"github.com/cardinalhq/pulseboard/surveydb"
	"github.com/cardinalhq/pulseboard/surveydb/migrations"
	"github.com/cardinalhq/pulseboard/surveydb/sqlitestore"
)

var migrateDown bool

func init() {
	MigrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll every migration back instead of applying them")
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Create or roll back the profiles and survey_responses tables in the configured store",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runCommand("pulseboard-migrate", migrate)
	},
}

func migrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		if migrateDown {
			return fmt.Errorf("--down is not supported for the sqlite store")
		}
		// Opening the sqlite store applies its schema.
		store, err := sqlitestore.Open(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
		slog.Info("sqlite migrations completed successfully", slog.String("path", cfg.Store.SQLitePath))
		return store.Close()
	case config.StoreDriverPostgres:
		return migrateSurveyDB(ctx)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func migrateSurveyDB(ctx context.Context) error {
	connectCtx, cancel := context.WithDeadline(ctx, time.Now().Add(5*time.Minute))
	defer cancel()
	pool, err := surveydb.ConnectToSurveyDB(connectCtx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrateDown {
		slog.Info("Rolling back surveydb migrations")
		return migrations.RunMigrationsDown(ctx, pool)
	}
	slog.Info("Running surveydb migrations")
	if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate surveydb: %w", err)
	}
	slog.Info("surveydb migrations completed successfully")
	return nil
}
