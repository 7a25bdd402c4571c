package kernel

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Compiled-in defaults for every tunable.
const (
	DefaultMaxTasks           = 32
	DefaultPriorityLevels     = 16
	DefaultMaxSemaphores      = 16
	DefaultMaxMutexes         = 16
	DefaultMaxEventGroups     = 16
	DefaultMaxQueues          = 16
	DefaultTickPeriodMS       = 10
	DefaultTimeSlice          = 10
	DefaultStackSize          = 2048
	MaxTimeout          Ticks = 1<<32 - 1

	IdlePriority = DefaultPriorityLevels - 1
)

// Config holds the system-wide tunables. Zero value is invalid; use
// DefaultConfig or LoadConfig.
type Config struct {
	MaxTasks       int    `yaml:"max_tasks"`
	PriorityLevels int    `yaml:"priority_levels"`
	MaxSemaphores  int    `yaml:"max_semaphores"`
	MaxMutexes     int    `yaml:"max_mutexes"`
	MaxEventGroups int    `yaml:"max_event_groups"`
	MaxQueues      int    `yaml:"max_queues"`
	TickPeriodMS   int    `yaml:"tick_period_ms"`
	DefaultSlice   Ticks  `yaml:"default_time_slice"`
	DefaultStack   uint32 `yaml:"default_stack_size"`
	Policy         Policy `yaml:"policy"`
}

// DefaultConfig returns the compiled-in tunables.
func DefaultConfig() Config {
	return Config{
		MaxTasks:       DefaultMaxTasks,
		PriorityLevels: DefaultPriorityLevels,
		MaxSemaphores:  DefaultMaxSemaphores,
		MaxMutexes:     DefaultMaxMutexes,
		MaxEventGroups: DefaultMaxEventGroups,
		MaxQueues:      DefaultMaxQueues,
		TickPeriodMS:   DefaultTickPeriodMS,
		DefaultSlice:   DefaultTimeSlice,
		DefaultStack:   DefaultStackSize,
		Policy:         PolicyPriority,
	}
}

// LoadConfig reads tunables from a YAML file, starting from DefaultConfig
// so a partial file only overrides what it mentions. A missing file is
// not an error — the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, wrapErr(KindInvalidArgument, "LoadConfig", "read config file", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, wrapErr(KindInvalidArgument, "LoadConfig", "parse config file", err)
	}
	return cfg, nil
}
