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

// Package survey holds the questionnaire model: the closed set of question
// identifiers, answer validation at the ingestion boundary, scoring and
// classification of a submission, and the joined per-row ViewRecord.
package survey

import "strconv"

// QuestionID identifies one item of the 12-item behavioral-health instrument.
type QuestionID int

const (
	Q1 QuestionID = iota + 1
	Q2
	Q3
	Q4
	Q5
	Q6
	Q7
	Q8
	Q9
	Q10
	Q11
	Q12
)

const (
	// QuestionCount is the number of items on the instrument.
	QuestionCount = 12

	// MinAnswer and MaxAnswer bound every individual answer.
	MinAnswer = 0
	MaxAnswer = 3

	// MaxScore is the highest total a complete submission can reach.
	MaxScore = QuestionCount * MaxAnswer
)

// Questions returns every question identifier in instrument order.
func Questions() []QuestionID {
	qs := make([]QuestionID, 0, QuestionCount)
	for q := Q1; q <= Q12; q++ {
		qs = append(qs, q)
	}
	return qs
}

// Valid reports whether q is part of the instrument.
func (q QuestionID) Valid() bool {
	return q >= Q1 && q <= Q12
}

// Key is the identifier used in stored answer documents ("q1".."q12").
func (q QuestionID) Key() string {
	return "q" + strconv.Itoa(int(q))
}

func (q QuestionID) String() string {
	return q.Key()
}

// ParseQuestionID maps a stored answer key back to its QuestionID.
func ParseQuestionID(key string) (QuestionID, bool) {
	if len(key) < 2 || (key[0] != 'q' && key[0] != 'Q') {
		return 0, false
	}
	n, err := strconv.Atoi(key[1:])
	if err != nil {
		return 0, false
	}
	q := QuestionID(n)
	return q, q.Valid()
}
