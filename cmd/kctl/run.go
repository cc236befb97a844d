package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/google/subcommands"

	"nanokernel.dev/nanokernel/internal/kconfig"
)

// runCmd implements subcommands.Command for "run": boots a fresh rig
// and drives one named scenario from spec.md §8 to completion.
type runCmd struct {
	configPath string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run a named end-to-end scenario" }
func (*runCmd) Usage() string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("run [-config path] <scenario>\n\nscenarios: %v\n", names)
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML config overriding the defaults")
}

func (c *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	sc, ok := scenarios[name]
	if !ok {
		fmt.Printf("run: unknown scenario %q\n", name)
		return subcommands.ExitUsageError
	}

	cfg, err := kconfig.Load(c.configPath)
	if err != nil {
		fmt.Println("run: config error:", err)
		return subcommands.ExitFailure
	}
	if name == "mlfqs-fairness" {
		cfg.MLFQS = true
	}

	r, err := buildRig(cfg)
	if err != nil {
		fmt.Println("run: bring-up failed:", err)
		return subcommands.ExitFailure
	}
	defer r.Close()

	trace, err := sc(r)
	if err != nil {
		fmt.Printf("run: scenario %q failed: %v\n", name, err)
		return subcommands.ExitFailure
	}
	fmt.Print(trace)
	return subcommands.ExitSuccess
}
