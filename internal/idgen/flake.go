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

// Package idgen hands out roughly time-ordered identifiers for naming
// change feed sessions and published events.
package idgen

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

var flakeStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultGenerator returns the process-wide generator, building it on first
// use. Hosts without a private IPv4 address get a machine id derived from
// the hostname and pid instead.
var DefaultGenerator = sync.OnceValues(func() (*SonyFlakeGenerator, error) {
	gen, err := newFlakeGenerator(nil)
	if err == nil {
		return gen, nil
	}
	return newFlakeGenerator(hostMachineID)
})

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func newFlakeGenerator(machineID func() (uint16, error)) (*SonyFlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: flakeStart,
		MachineID: machineID,
	})
	if err != nil {
		return nil, fmt.Errorf("sonyflake: %w", err)
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

func hostMachineID() (uint16, error) {
	host, _ := os.Hostname()
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s/%d", host, os.Getpid())
	sum := h.Sum32()
	return uint16(sum ^ sum>>16), nil
}

// NextID returns a positive int64 that'll increase roughly in time order.
func (g *SonyFlakeGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

var base32Lower = base32.StdEncoding.WithPadding(base32.NoPadding)

// NextBase32ID is NextID rendered as unpadded lowercase base32.
func (g *SonyFlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.NextID()))
	return strings.ToLower(base32Lower.EncodeToString(b[:]))
}

// NextID draws from the default generator, or returns a random positive
// id when no generator could be built.
func NextID() int64 {
	gen, err := DefaultGenerator()
	if err != nil {
		return rand.Int64()
	}
	return gen.NextID()
}

func NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(NextID()))
	return strings.ToLower(base32Lower.EncodeToString(b[:]))
}

// SessionName returns prefix-<id><nonce>. The id keeps names roughly time
// ordered and the random nonce keeps processes sharing a machine id apart.
func SessionName(prefix string) string {
	return sessionName(prefix, NextBase32ID())
}

// SessionName is the package SessionName drawing ids from g.
func (g *SonyFlakeGenerator) SessionName(prefix string) string {
	return sessionName(prefix, g.NextBase32ID())
}

func sessionName(prefix, id string) string {
	nonce := uuid.New()
	name := id + strings.ToLower(base32Lower.EncodeToString(nonce[:5]))
	if prefix == "" {
		return name
	}
	return prefix + "-" + name
}
