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

// RiskBucket is the ordinal classification of a total score.
type RiskBucket int

const (
	NoData RiskBucket = iota
	Low
	Moderate
	High
	VeryHigh
)

// Buckets lists every bucket in ordinal order.
var Buckets = []RiskBucket{NoData, Low, Moderate, High, VeryHigh}

var bucketNames = map[RiskBucket]string{
	NoData:   "no_data",
	Low:      "low",
	Moderate: "moderate",
	High:     "high",
	VeryHigh: "very_high",
}

func (b RiskBucket) String() string {
	if name, ok := bucketNames[b]; ok {
		return name
	}
	return "unknown"
}

// ParseRiskBucket maps a bucket name back to its value.
func ParseRiskBucket(s string) (RiskBucket, bool) {
	for b, name := range bucketNames {
		if name == s {
			return b, true
		}
	}
	return NoData, false
}

// Classification is the scored outcome of one answer set.
type Classification struct {
	Bucket RiskBucket
	Score  int
}

// Score sums all answers. A nil or empty set scores 0.
func Score(a Answers) int {
	total := 0
	for _, v := range a {
		total += v
	}
	return total
}

// BucketFor maps a total score of a non-empty submission onto its bucket.
func BucketFor(score int) RiskBucket {
	switch {
	case score <= 9:
		return Low
	case score <= 18:
		return Moderate
	case score <= 27:
		return High
	default:
		return VeryHigh
	}
}

// Classify scores an answer set. An absent or empty set is NoData with score 0.
func Classify(a Answers) Classification {
	if len(a) == 0 {
		return Classification{Bucket: NoData}
	}
	score := Score(a)
	return Classification{Bucket: BucketFor(score), Score: score}
}
