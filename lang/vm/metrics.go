// Copyright 2025 The go-loop Authors
// This file is part of go-loop.
//
// go-loop is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-loop is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-loop. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"github.com/ethereum/go-ethereum/metrics"
)

// Runtime counters, registered on the default registry under loop/. The
// stats surface in cmd/loopvm walks the registry to render them.

var (
	gcCyclesMeter    = newMeter("loop/gc/cycles")
	gcSweptMeter     = newMeter("loop/gc/swept")
	gcReclaimedMeter = newMeter("loop/gc/reclaimed")
	gcLiveBytesGauge = newGauge("loop/gc/live")

	modulesLoadedMeter   = newMeter("loop/loader/modules")
	instructionsMeter    = newMeter("loop/vm/instructions")
	stringsInternedMeter = newMeter("loop/strings/interned")
)

// newMeter enables collection before the first registration; package var
// init runs before any main, so flag-based enabling would come too late.
func newMeter(name string) metrics.Meter {
	metrics.Enabled = true
	return metrics.NewRegisteredMeter(name, nil)
}

func newGauge(name string) metrics.Gauge {
	metrics.Enabled = true
	return metrics.NewRegisteredGauge(name, nil)
}
