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

// Window describes where a page sits within the full result set.
type Window struct {
	PageIndex  int
	PageSize   int
	TotalItems int64
	TotalPages int
}

// NewWindow computes TotalPages = ceil(totalItems / pageSize) and clamps
// pageIndex into range.
func NewWindow(pageIndex, pageSize int, totalItems int64) Window {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if totalItems < 0 {
		totalItems = 0
	}
	totalPages := int((totalItems + int64(pageSize) - 1) / int64(pageSize))
	return Window{
		PageIndex:  ClampPage(pageIndex, totalPages),
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// ClampPage keeps pageIndex in [0, totalPages) when totalPages > 0 and
// returns 0 otherwise.
func ClampPage(pageIndex, totalPages int) int {
	if pageIndex < 0 || totalPages <= 0 {
		return 0
	}
	if pageIndex >= totalPages {
		return totalPages - 1
	}
	return pageIndex
}

// Offset is the row offset of the first item on the page.
func (w Window) Offset() int {
	return w.PageIndex * w.PageSize
}

func (w Window) HasNext() bool {
	return w.PageIndex+1 < w.TotalPages
}

func (w Window) HasPrev() bool {
	return w.PageIndex > 0
}
