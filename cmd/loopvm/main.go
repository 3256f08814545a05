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

// Command loopvm runs a compiled Loop module.
//
// Usage:
//
//	loopvm [flags] <module path>
//
// The module's compiled form is looked up at
// <dir>/.loop_compiled/<base>.code relative to the current directory, the
// importing module, or LOOP_PACKAGES_PATH. The process exit code is the
// runtime error code (0 on success).
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/urfave/cli.v1"

	"github.com/loop-lang/go-loop/lang/vm"
)

const version = "0.3.0"

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	packagesFlag = cli.StringFlag{
		Name:  "packages",
		Usage: "Module search root (overrides " + vm.PackagesPathEnv + ")",
	}
	traceFlag = cli.BoolFlag{
		Name:  "trace",
		Usage: "Print the stack and each instruction while executing",
	}
	disasmFlag = cli.BoolFlag{
		Name:  "disasm",
		Usage: "Disassemble every chunk after decoding",
	}
	gcStressFlag = cli.BoolFlag{
		Name:  "gcstress",
		Usage: "Collect garbage on every allocation",
	}
	statsFlag = cli.BoolFlag{
		Name:  "stats",
		Usage: "Print runtime counters after the run",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "loopvm"
	app.Version = version
	app.Usage = "the Loop virtual machine"
	app.ArgsUsage = "<module path>"
	app.HideVersion = false
	app.Flags = []cli.Flag{
		configFileFlag,
		packagesFlag,
		traceFlag,
		disasmFlag,
		gcStressFlag,
		statsFlag,
		verbosityFlag,
	}
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: wrong arguments count")
		fmt.Fprintln(os.Stderr, "usage: loopvm <path>")
		return cli.NewExitError("", vm.ErrWrongArgumentsCount.ExitCode())
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cli.NewExitError("", vm.ErrIOError.ExitCode())
	}

	machine, verr := vm.New(vm.Config{
		PackagesPath: cfg.VM.PackagesPath,
		Trace:        cfg.VM.Trace,
		DisasmOnLoad: cfg.VM.Disasm,
		StressGC:     cfg.VM.GCStress,
		Logger:       log.Root(),
	})
	if verr != vm.ErrNone {
		return cli.NewExitError("", verr.ExitCode())
	}
	defer machine.Close()

	code := machine.RunPath(ctx.Args().First())

	if cfg.VM.Stats {
		printStats(os.Stderr)
	}

	if code != vm.ErrNone {
		return cli.NewExitError("", code.ExitCode())
	}
	return nil
}

// setupLogging installs a terminal-aware handler at the requested verbosity.
func setupLogging(ctx *cli.Context) {
	output := io.Writer(os.Stderr)
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	glogger := log.NewGlogHandler(log.StreamHandler(output, log.TerminalFormat(usecolor)))
	glogger.Verbosity(log.Lvl(ctx.GlobalInt(verbosityFlag.Name)))
	log.Root().SetHandler(glogger)
}
