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

package joinloader

import "fmt"

// FetchError reports a failed remote read. The loader does not retry;
// callers keep their previous page and may offer a retry.
type FetchError struct {
	Op        string
	PageIndex int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("load page %d: %s: %v", e.PageIndex, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
