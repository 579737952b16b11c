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

	"github.com/cardinalhq/pulseboard/config"
	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/surveydb"
	"github.com/cardinalhq/pulseboard/surveydb/sqlitestore"
)

// openStore connects to the configured store. Postgres settings come from
// the SURVEYDB_* environment variables.
func openStore(ctx context.Context, cfg *config.Config) (surveydb.Querier, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		slog.Debug("Opening sqlite store", slog.String("path", cfg.Store.SQLitePath))
		store, err := sqlitestore.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreDriverPostgres:
		pool, err := surveydb.ConnectToSurveyDB(ctx)
		if err != nil {
			return nil, err
		}
		return surveydb.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// feed bundles the change feed transport and publisher picked by
// configuration. Either may be nil when the backend is "none".
type feed struct {
	transport changefeed.Transport
	publisher changefeed.Publisher
	close     func() error
}

func openFeed(cfg *config.Config) (*feed, error) {
	switch cfg.Feed.Backend {
	case config.FeedBackendNone:
		return &feed{close: func() error { return nil }}, nil
	case config.FeedBackendMemory:
		slog.Warn("Memory change feed only carries writes made by this process")
		mt := changefeed.NewMemoryTransport()
		return &feed{transport: mt, publisher: mt, close: mt.Close}, nil
	case config.FeedBackendKafka:
		transport, err := changefeed.NewKafkaTransport(cfg.Feed.Kafka)
		if err != nil {
			return nil, err
		}
		publisher, err := changefeed.NewKafkaPublisher(cfg.Feed.Kafka)
		if err != nil {
			return nil, err
		}
		return &feed{transport: transport, publisher: publisher, close: publisher.Close}, nil
	case config.FeedBackendWebSocket:
		// The realtime gateway is subscribe-only; writes reach it through
		// the database's own change capture.
		return &feed{
			transport: changefeed.NewWebSocketTransport(cfg.Feed.WebSocket),
			close:     func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown feed backend %q", cfg.Feed.Backend)
	}
}
