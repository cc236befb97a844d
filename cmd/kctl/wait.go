package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"nanokernel.dev/nanokernel/internal/kconfig"
	"nanokernel.dev/nanokernel/ktime"
)

// waitCmd implements subcommands.Command for "wait": forks a child
// that sleeps briefly and exits with a chosen status, then waits on
// it and reports the status — a minimal end-to-end exercise of
// fork/sleep/exit/wait in one process, standing in for "wait on a pid
// outside this process" since there is no real process boundary here.
type waitCmd struct {
	configPath string
	sleepTicks int
	status     int
}

func (*waitCmd) Name() string     { return "wait" }
func (*waitCmd) Synopsis() string { return "fork a child, wait on it, report its exit status" }
func (*waitCmd) Usage() string    { return "wait [-config path] [-sleep N] [-status N]\n" }

func (c *waitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML config overriding the defaults")
	f.IntVar(&c.sleepTicks, "sleep", 10, "ticks the child sleeps before exiting")
	f.IntVar(&c.status, "status", 7, "exit status the child reports")
}

func (c *waitCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	cfg, err := kconfig.Load(c.configPath)
	if err != nil {
		fmt.Println("wait: config error:", err)
		return subcommands.ExitFailure
	}
	r, err := buildRig(cfg)
	if err != nil {
		fmt.Println("wait: bring-up failed:", err)
		return subcommands.ExitFailure
	}
	defer r.Close()

	timer := ktime.NewSimulated()
	go timer.Run(r.k.Tick)

	tid, err := r.api.Fork("child", func() {
		r.k.Sleep(int64(c.sleepTicks))
		r.api.Exit(c.status)
	})
	if err != nil {
		fmt.Println("wait: fork failed:", err)
		return subcommands.ExitFailure
	}

	status, err := r.api.Wait(tid)
	if err != nil {
		fmt.Println("wait: wait failed:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("child tid=%d exited with status=%d\n", tid, status)
	return subcommands.ExitSuccess
}
