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

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/naoina/toml"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"
)

// vmOptions is the [VM] section of the config file. Flags override it.
type vmOptions struct {
	PackagesPath string `toml:",omitempty"`
	Trace        bool   `toml:",omitempty"`
	Disasm       bool   `toml:",omitempty"`
	GCStress     bool   `toml:",omitempty"`
	Stats        bool   `toml:",omitempty"`
}

type loopvmConfig struct {
	VM vmOptions
}

// These settings ensure that TOML keys use the same names as Go struct
// fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// loadConfig merges the optional TOML file with command-line flags; flags
// win.
func loadConfig(ctx *cli.Context) (loopvmConfig, error) {
	var cfg loopvmConfig

	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()

		if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("%s: %v", path, err)
		}
	}

	if ctx.GlobalIsSet(packagesFlag.Name) {
		cfg.VM.PackagesPath = ctx.GlobalString(packagesFlag.Name)
	}
	if ctx.GlobalBool(traceFlag.Name) {
		cfg.VM.Trace = true
	}
	if ctx.GlobalBool(disasmFlag.Name) {
		cfg.VM.Disasm = true
	}
	if ctx.GlobalBool(gcStressFlag.Name) {
		cfg.VM.GCStress = true
	}
	if ctx.GlobalBool(statsFlag.Name) {
		cfg.VM.Stats = true
	}

	return cfg, nil
}

// printStats renders the loop/ counters from the metrics registry.
func printStats(w io.Writer) {
	type row struct {
		name  string
		value int64
	}
	var rows []row

	metrics.DefaultRegistry.Each(func(name string, i interface{}) {
		if !strings.HasPrefix(name, "loop/") {
			return
		}
		switch m := i.(type) {
		case metrics.Meter:
			rows = append(rows, row{name, m.Count()})
		case metrics.Gauge:
			rows = append(rows, row{name, m.Value()})
		}
	})

	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Counter", "Value"})
	for _, r := range rows {
		table.Append([]string{r.name, fmt.Sprintf("%d", r.value)})
	}
	table.Render()
}
