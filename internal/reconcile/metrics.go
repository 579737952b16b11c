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

package reconcile

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	reloadsStarted  metric.Int64Counter
	reloadFailures  metric.Int64Counter
	eventsCoalesced metric.Int64Counter
	eventsDropped   metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/pulseboard/internal/reconcile")

	var err error

	reloadsStarted, err = meter.Int64Counter(
		"pulseboard.reconcile.reloads",
		metric.WithDescription("Number of reconciliation reloads started"),
	)
	if err != nil {
		log.Fatalf("failed to create reconcile.reloads counter: %v", err)
	}

	reloadFailures, err = meter.Int64Counter(
		"pulseboard.reconcile.reload_failures",
		metric.WithDescription("Number of reconciliation reloads that returned an error"),
	)
	if err != nil {
		log.Fatalf("failed to create reconcile.reload_failures counter: %v", err)
	}

	eventsCoalesced, err = meter.Int64Counter(
		"pulseboard.reconcile.coalesced",
		metric.WithDescription("Number of change events folded into a pending reload"),
	)
	if err != nil {
		log.Fatalf("failed to create reconcile.coalesced counter: %v", err)
	}

	eventsDropped, err = meter.Int64Counter(
		"pulseboard.reconcile.dropped",
		metric.WithDescription("Number of change events dropped by the cool-down gate"),
	)
	if err != nil {
		log.Fatalf("failed to create reconcile.dropped counter: %v", err)
	}
}
