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
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	stateTransitions metric.Int64Counter
	retryAttempts    metric.Int64Counter
	eventsReceived   metric.Int64Counter
	eventsPublished  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/pulseboard/internal/changefeed")

	var err error

	stateTransitions, err = meter.Int64Counter(
		"pulseboard.changefeed.transitions",
		metric.WithDescription("Number of subscription state transitions, by entered state"),
	)
	if err != nil {
		log.Fatalf("failed to create changefeed.transitions counter: %v", err)
	}

	retryAttempts, err = meter.Int64Counter(
		"pulseboard.changefeed.retries",
		metric.WithDescription("Number of subscription retries scheduled"),
	)
	if err != nil {
		log.Fatalf("failed to create changefeed.retries counter: %v", err)
	}

	eventsReceived, err = meter.Int64Counter(
		"pulseboard.changefeed.events_received",
		metric.WithDescription("Number of change events forwarded to the subscriber"),
	)
	if err != nil {
		log.Fatalf("failed to create changefeed.events_received counter: %v", err)
	}

	eventsPublished, err = meter.Int64Counter(
		"pulseboard.changefeed.events_published",
		metric.WithDescription("Number of change events published"),
	)
	if err != nil {
		log.Fatalf("failed to create changefeed.events_published counter: %v", err)
	}
}
