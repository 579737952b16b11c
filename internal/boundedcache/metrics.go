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

package boundedcache

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheEvictions metric.Int64Counter
	cacheRefreshes metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/pulseboard/internal/boundedcache")

	var err error

	cacheHits, err = meter.Int64Counter(
		"pulseboard.cache.hits",
		metric.WithDescription("Number of bounded cache hits, stale entries included"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.hits counter: %v", err)
	}

	cacheMisses, err = meter.Int64Counter(
		"pulseboard.cache.misses",
		metric.WithDescription("Number of bounded cache misses"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.misses counter: %v", err)
	}

	cacheEvictions, err = meter.Int64Counter(
		"pulseboard.cache.evictions",
		metric.WithDescription("Number of least-recently-used evictions"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.evictions counter: %v", err)
	}

	cacheRefreshes, err = meter.Int64Counter(
		"pulseboard.cache.refreshes",
		metric.WithDescription("Number of background refreshes of stale entries"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.refreshes counter: %v", err)
	}
}
