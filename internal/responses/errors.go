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
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrSuperseded is returned by a load whose result was discarded
	// because a newer load started after it.
	ErrSuperseded = errors.New("responses: superseded by a newer request")
	ErrClosed     = errors.New("responses: controller closed")
	ErrNotFound   = errors.New("responses: record not on the current page")
)

// DeleteError reports a failed remote delete. Nothing was removed locally.
type DeleteError struct {
	IDs []uuid.UUID
	Err error
}

func (e *DeleteError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("delete %s: %v", e.IDs[0], e.Err)
	}
	return fmt.Sprintf("delete %d records: %v", len(e.IDs), e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
