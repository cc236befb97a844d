package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"nanokernel.dev/nanokernel/internal/kconfig"
	"nanokernel.dev/nanokernel/ktime"
)

// statsCmd implements subcommands.Command for "stats": boots a rig,
// drives a fixed number of ticks through an idle kernel, and reports
// the resulting idle/user/kernel tick counters and (under MLFQS)
// load_avg.
type statsCmd struct {
	configPath string
	ticks      int
}

func (*statsCmd) Name() string     { return "stats" }
func (*statsCmd) Synopsis() string { return "drive N ticks and report kernel statistics" }
func (*statsCmd) Usage() string    { return "stats [-config path] [-ticks N]\n" }

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML config overriding the defaults")
	f.IntVar(&c.ticks, "ticks", 100, "number of ticks to drive")
}

func (c *statsCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	cfg, err := kconfig.Load(c.configPath)
	if err != nil {
		fmt.Println("stats: config error:", err)
		return subcommands.ExitFailure
	}
	r, err := buildRig(cfg)
	if err != nil {
		fmt.Println("stats: bring-up failed:", err)
		return subcommands.ExitFailure
	}
	defer r.Close()

	timer := ktime.NewSimulated()
	timer.FireN(c.ticks, r.k.Tick)

	st := r.k.Stats()
	fmt.Printf("ticks=%d idle=%d kernel=%d user=%d load_avg=%d\n",
		r.k.Ticks(), st.IdleTicks, st.KernelTicks, st.UserTicks, r.k.LoadAvg())
	return subcommands.ExitSuccess
}
