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

package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cardinalhq/kafka-sync/kafkasync"
)

// TopicSyncer makes sure the Kafka topics behind the change feed exist with
// the configured layout.
type TopicSyncer struct {
	cfg KafkaConfig
}

func NewTopicSyncer(cfg KafkaConfig) *TopicSyncer {
	return &TopicSyncer{cfg: cfg}
}

// TopicsConfig describes the Kafka topics for the given logical topics.
func (s *TopicSyncer) TopicsConfig(topics []string) *kafkasync.Config {
	defaults := kafkasync.Defaults{
		PartitionCount:    max(s.cfg.Partitions, 1),
		ReplicationFactor: max(s.cfg.ReplicationFactor, 1),
		TopicConfig:       map[string]string{},
	}
	if s.cfg.Retention > 0 {
		defaults.TopicConfig["retention.ms"] = strconv.FormatInt(s.cfg.Retention.Milliseconds(), 10)
	}

	out := &kafkasync.Config{
		Defaults:         defaults,
		Topics:           make([]kafkasync.Topic, len(topics)),
		OperationTimeout: time.Minute,
	}
	for i, topic := range topics {
		out.Topics[i] = kafkasync.Topic{Name: s.cfg.KafkaTopic(topic)}
	}
	return out
}

func (s *TopicSyncer) connectionConfig() (kafkasync.ConnectionConfig, error) {
	conn := kafkasync.ConnectionConfig{
		BootstrapServers: s.cfg.Brokers,
		TLS:              s.cfg.tlsConfig(),
	}
	mechanism, err := s.cfg.saslMechanism()
	if err != nil {
		return conn, fmt.Errorf("failed to create SASL mechanism: %w", err)
	}
	conn.SASLMechanism = mechanism
	return conn, nil
}

// Sync compares the existing topics with TopicsConfig(topics). With fix
// set, missing topics are created; otherwise differences are only logged.
func (s *TopicSyncer) Sync(ctx context.Context, topics []string, fix bool) error {
	conn, err := s.connectionConfig()
	if err != nil {
		return err
	}
	topicsConfig := s.TopicsConfig(topics)
	syncer, err := kafkasync.NewSyncer(conn, topicsConfig)
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	mode := kafkasync.SyncModeInfo
	if fix {
		mode = kafkasync.SyncModeFix
	}
	slog.Info("Syncing change feed topics",
		slog.Bool("fix", fix),
		slog.Int("topic_count", len(topicsConfig.Topics)))
	if err := syncer.Sync(ctx, mode); err != nil {
		return fmt.Errorf("failed to sync topics: %w", err)
	}
	return nil
}
