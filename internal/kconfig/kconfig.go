// Package kconfig decodes the kernel's tunables from a TOML file, the
// way runsc/config decodes the sandbox's config.toml.
package kconfig

import (
	"github.com/BurntSushi/toml"
)

// Config holds every tunable spec.md names as a fixed constant.
type Config struct {
	// TimerFreq is the tick rate in Hz. MLFQS recomputes load_avg and
	// every thread's recent_cpu every TimerFreq ticks.
	TimerFreq int `toml:"timer_freq"`

	// TimeSlice is the number of ticks a thread runs before Tick
	// requests a yield-on-return, under either policy.
	TimeSlice int `toml:"time_slice"`

	// MLFQS selects the multi-level feedback queue policy instead of
	// strict priority + round robin.
	MLFQS bool `toml:"mlfqs"`

	// Nice is decoded from the config file but not applied: kctl does
	// not pass it to the kernel, and new threads start with nice 0.
	Nice int `toml:"nice"`

	// StackLimit is the maximum size in bytes a user stack may grow to
	// before a fault below it is refused.
	StackLimit int64 `toml:"stack_limit"`

	// SwapSectors is the size of the simulated swap disk in 512-byte
	// sectors.
	SwapSectors int `toml:"swap_sectors"`
}

// Default returns the constants spec.md §4.3/§4.4 name as defaults.
func Default() Config {
	return Config{
		TimerFreq:   100,
		TimeSlice:   4,
		MLFQS:       false,
		Nice:        0,
		StackLimit:  1 << 20, // 1 MiB
		SwapSectors: 4096,
	}
}

// Load decodes path on top of Default(), so a partial TOML file only
// overrides the fields it mentions.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}
