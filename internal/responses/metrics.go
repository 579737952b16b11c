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

package responses

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	pageLoads      metric.Int64Counter
	loadsDiscarded metric.Int64Counter
	rowsDeleted    metric.Int64Counter
	deleteFailures metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/pulseboard/internal/responses")

	var err error

	pageLoads, err = meter.Int64Counter(
		"pulseboard.responses.page_loads",
		metric.WithDescription("Number of page loads, by cache state observed"),
	)
	if err != nil {
		log.Fatalf("failed to create responses.page_loads counter: %v", err)
	}

	loadsDiscarded, err = meter.Int64Counter(
		"pulseboard.responses.loads_discarded",
		metric.WithDescription("Number of page load results discarded because a newer load superseded them"),
	)
	if err != nil {
		log.Fatalf("failed to create responses.loads_discarded counter: %v", err)
	}

	rowsDeleted, err = meter.Int64Counter(
		"pulseboard.responses.rows_deleted",
		metric.WithDescription("Number of profiles deleted through the controller"),
	)
	if err != nil {
		log.Fatalf("failed to create responses.rows_deleted counter: %v", err)
	}

	deleteFailures, err = meter.Int64Counter(
		"pulseboard.responses.delete_failures",
		metric.WithDescription("Number of failed delete calls"),
	)
	if err != nil {
		log.Fatalf("failed to create responses.delete_failures counter: %v", err)
	}
}
