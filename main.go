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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	gomaxecs "github.com/rdforte/gomaxecs/maxprocs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/pulseboard/cmd"
)

// debugf routes the tuning libraries' printf-style messages to slog at
// debug level, so one-shot commands stay quiet.
func debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...))
}

// tuneRuntime sizes GOMAXPROCS and GOMEMLIMIT to the container. Only
// failures reach stderr. An explicit GOMEMLIMIT is left alone.
func tuneRuntime() {
	var err error
	if gomaxecs.IsECS() {
		_, err = gomaxecs.Set(gomaxecs.WithLogger(debugf))
	} else {
		_, err = maxprocs.Set(maxprocs.Logger(debugf))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulseboard: could not size GOMAXPROCS: %v\n", err)
	}

	if os.Getenv("GOMEMLIMIT") != "" {
		return
	}
	_, err = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.8),
		memlimit.WithLogger(slog.New(slog.DiscardHandler)),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		debugf("no memory limit applied: %v", err)
	}
}

func main() {
	time.Local = time.UTC
	tuneRuntime()
	cmd.Execute()
}
