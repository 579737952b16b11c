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
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cardinalhq/pulseboard/internal/survey"
)

// CSVHeader is the first line written by ExportCSV.
var CSVHeader = []string{
	"id", "first_name", "last_name", "email", "department",
	"completed_at", "risk_bucket", "total_score",
}

// ExportCSV writes the filtered and sorted records of the current page.
// Fields are joined with commas and never quoted, so a field containing a
// comma shifts the columns of its row.
func (c *Controller) ExportCSV(w io.Writer) error {
	return WriteCSV(w, c.View().Records)
}

// WriteCSV writes the header and one row per record.
func WriteCSV(w io.Writer, records []survey.ViewRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(CSVHeader, ",") + "\n"); err != nil {
		return err
	}
	row := make([]string, len(CSVHeader))
	for _, r := range records {
		row[0] = r.ID.String()
		row[1] = r.FirstName
		row[2] = r.LastName
		row[3] = r.Email
		row[4] = r.Department
		row[5] = ""
		if r.Completed {
			row[5] = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		row[6] = r.RiskBucket.String()
		row[7] = strconv.Itoa(r.TotalScore)
		if _, err := bw.WriteString(strings.Join(row, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
