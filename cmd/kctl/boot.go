package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"nanokernel.dev/nanokernel/internal/kconfig"
)

// bootCmd implements subcommands.Command for "boot": brings up a rig
// and immediately tears it down, verifying bring-up order succeeds.
type bootCmd struct {
	configPath string
}

func (*bootCmd) Name() string     { return "boot" }
func (*bootCmd) Synopsis() string { return "bring up the kernel and exit" }
func (*bootCmd) Usage() string    { return "boot [-config path]\n" }

func (c *bootCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML config overriding the defaults")
}

func (c *bootCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	cfg, err := kconfig.Load(c.configPath)
	if err != nil {
		fmt.Println("boot: config error:", err)
		return subcommands.ExitFailure
	}
	r, err := buildRig(cfg)
	if err != nil {
		fmt.Println("boot: bring-up failed:", err)
		return subcommands.ExitFailure
	}
	defer r.Close()
	fmt.Println(r.k.String())
	return subcommands.ExitSuccess
}
