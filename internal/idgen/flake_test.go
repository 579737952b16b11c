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

package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyFlakeGenerator_NextID(t *testing.T) {
	gen, err := newFlakeGenerator(hostMachineID)
	require.NoError(t, err, "failed to create SonyFlakeGenerator")

	id := gen.NextID()
	id2 := gen.NextID()
	assert.Greater(t, id2, id, "NextID() did not return increasing id")
}

func TestSonyFlakeGenerator_NextBase32ID(t *testing.T) {
	gen, err := newFlakeGenerator(hostMachineID)
	require.NoError(t, err)

	id1 := gen.NextBase32ID()
	id2 := gen.NextBase32ID()
	assert.NotEqual(t, id1, id2)
	assert.NotContains(t, id1, "=")
	assert.Equal(t, strings.ToLower(id1), id1)
}

func TestSessionName(t *testing.T) {
	a := SessionName("responses")
	b := SessionName("responses")
	assert.True(t, strings.HasPrefix(a, "responses-"))
	assert.NotEqual(t, a, b)
	assert.NotContains(t, SessionName(""), "-")
}

func TestDefaultGeneratorFallsBackToHostMachineID(t *testing.T) {
	gen, err := DefaultGenerator()
	require.NoError(t, err)
	require.NotNil(t, gen)
	assert.Positive(t, NextID())

	a, err := hostMachineID()
	require.NoError(t, err)
	b, _ := hostMachineID()
	assert.Equal(t, a, b, "stable within a process")
}

func TestSessionNameDistinctAcrossSharedMachineID(t *testing.T) {
	machineID := func() (uint16, error) { return 42, nil }
	g1, err := newFlakeGenerator(machineID)
	require.NoError(t, err)
	g2, err := newFlakeGenerator(machineID)
	require.NoError(t, err)

	for range 50 {
		assert.NotEqual(t, g1.SessionName("responses"), g2.SessionName("responses"))
	}
}
