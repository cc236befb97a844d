// Command kctl is the kernel's bring-up and scenario-driver CLI,
// playing the role runsc plays for gVisor: a single binary exposing
// subcommands over the core (boot, run, stats, wait) instead of a
// full container runtime.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"nanokernel.dev/nanokernel/internal/klog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&bootCmd{}, "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&statsCmd{}, "")
	subcommands.Register(&waitCmd{}, "")

	debug := flag.Bool("debug", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log output format: text or json")
	flag.Parse()

	klog.SetDebug(*debug)
	klog.SetJSON(*logFormat == "json")

	os.Exit(int(subcommands.Execute(context.Background())))
}
