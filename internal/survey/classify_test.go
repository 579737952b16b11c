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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answersWithTotal spreads total over the instrument, filling items to 3.
func answersWithTotal(total int) Answers {
	a := make(Answers, QuestionCount)
	for _, q := range Questions() {
		v := min(total, MaxAnswer)
		a[q] = v
		total -= v
	}
	return a
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		score  int
		bucket RiskBucket
	}{
		{0, Low},
		{9, Low},
		{10, Moderate},
		{18, Moderate},
		{19, High},
		{27, High},
		{28, VeryHigh},
		{MaxScore, VeryHigh},
	}

	for _, tt := range tests {
		t.Run(tt.bucket.String(), func(t *testing.T) {
			c := Classify(answersWithTotal(tt.score))
			assert.Equal(t, tt.score, c.Score)
			assert.Equal(t, tt.bucket, c.Bucket, "score %d", tt.score)
		})
	}
}

func TestClassifyEmpty(t *testing.T) {
	assert.Equal(t, Classification{Bucket: NoData, Score: 0}, Classify(nil))
	assert.Equal(t, Classification{Bucket: NoData, Score: 0}, Classify(Answers{}))
}

func TestParseAnswers(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"q1": 3, "q2": 0, "q3": "2", "q4": 1.5, "q5": 7, "q6": -1,
		"q7": "often", "q8": null, "q13": 2, "mood": 1, "Q9": 2
	}`), &raw))

	answers, invalid := ParseAnswers(raw)

	assert.Equal(t, Answers{Q1: 3, Q2: 0, Q3: 2, Q9: 2}, answers)

	reasons := map[string]string{}
	for _, i := range invalid {
		reasons[i.Key] = i.Reason
	}
	assert.Equal(t, map[string]string{
		"q4":   "not an integer",
		"q5":   "out of range",
		"q6":   "out of range",
		"q7":   "not a number",
		"q8":   "missing value",
		"q13":  "unknown question",
		"mood": "unknown question",
	}, reasons)
	assert.Equal(t, 7, Score(answers))
}

func TestParseAnswersNil(t *testing.T) {
	answers, invalid := ParseAnswers(nil)
	assert.Nil(t, answers)
	assert.Empty(t, invalid)
}

func TestAnswersRawRoundTrip(t *testing.T) {
	in := Answers{Q1: 1, Q12: 3}
	out, invalid := ParseAnswers(in.Raw())
	assert.Empty(t, invalid)
	assert.Equal(t, in, out)
}

func TestRiskBucketNames(t *testing.T) {
	for _, b := range Buckets {
		parsed, ok := ParseRiskBucket(b.String())
		require.True(t, ok, b.String())
		assert.Equal(t, b, parsed)
	}
	_, ok := ParseRiskBucket("all")
	assert.False(t, ok)
}

func TestParseQuestionID(t *testing.T) {
	q, ok := ParseQuestionID("q12")
	assert.True(t, ok)
	assert.Equal(t, Q12, q)

	for _, key := range []string{"", "q", "q0", "q13", "x1", "q1a"} {
		_, ok := ParseQuestionID(key)
		assert.False(t, ok, key)
	}
}
