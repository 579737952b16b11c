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

package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Answers is a validated answer set: every key is a known question and
// every value lies in [MinAnswer, MaxAnswer].
type Answers map[QuestionID]int

// InvalidAnswer describes a stored answer that was rejected at ingestion.
type InvalidAnswer struct {
	Key    string
	Value  any
	Reason string
}

func (i InvalidAnswer) String() string {
	return fmt.Sprintf("%s=%v (%s)", i.Key, i.Value, i.Reason)
}

// ParseAnswers validates a raw answer document as decoded from storage.
// Unknown question keys, non-numeric values, fractional values and values
// outside the answer range are rejected and returned separately; they never
// reach scoring. A nil document yields nil Answers.
func ParseAnswers(raw map[string]any) (Answers, []InvalidAnswer) {
	if raw == nil {
		return nil, nil
	}

	answers := make(Answers, len(raw))
	var invalid []InvalidAnswer

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		q, ok := ParseQuestionID(key)
		if !ok {
			invalid = append(invalid, InvalidAnswer{Key: key, Value: value, Reason: "unknown question"})
			continue
		}
		n, reason := coerceAnswer(value)
		if reason != "" {
			invalid = append(invalid, InvalidAnswer{Key: key, Value: value, Reason: reason})
			continue
		}
		answers[q] = n
	}

	return answers, invalid
}

func coerceAnswer(v any) (int, string) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, "not a number"
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, "not a number"
		}
		f = parsed
	case nil:
		return 0, "missing value"
	default:
		return 0, "not a number"
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "not a number"
	}
	if f != math.Trunc(f) {
		return 0, "not an integer"
	}
	if f < MinAnswer || f > MaxAnswer {
		return 0, "out of range"
	}
	return int(f), ""
}

// Raw converts validated answers back to their stored document form.
func (a Answers) Raw() map[string]any {
	if a == nil {
		return nil
	}
	out := make(map[string]any, len(a))
	for q, v := range a {
		out[q.Key()] = v
	}
	return out
}
