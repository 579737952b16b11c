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
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Key builds the composite key for a logical query and its parameters.
// Parameter names are case-insensitive: they are lowercased, then sorted,
// so equal parameter sets always map to the same key regardless of map
// iteration order or name case. Names that differ only in case are all
// kept, ordered by their original spelling.
func Key(query string, params map[string]any) string {
	if len(params) == 0 {
		return query
	}
	type param struct {
		lower, name string
	}
	names := make([]param, 0, len(params))
	for name := range params {
		names = append(names, param{lower: strings.ToLower(name), name: name})
	}
	slices.SortFunc(names, func(a, b param) int {
		return cmp.Or(cmp.Compare(a.lower, b.lower), cmp.Compare(a.name, b.name))
	})

	var b strings.Builder
	b.WriteString(query)
	b.WriteByte('?')
	for i, p := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%v", p.lower, params[p.name])
	}
	return b.String()
}

// QueryPrefix matches every key built for query, with or without parameters.
func QueryPrefix(query string) func(key string) bool {
	return func(key string) bool {
		return key == query || strings.HasPrefix(key, query+"?")
	}
}
