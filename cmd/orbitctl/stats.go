package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nyota-systems/orbitkernel/kernel"
)

// statsSnapshot is the YAML-serializable view of kernel.SchedulerStats
// for `orbitctl run --format yaml`.
type statsSnapshot struct {
	SystemTime           kernel.Ticks `yaml:"system_time_ticks"`
	IdleTime             kernel.Ticks `yaml:"idle_time_ticks"`
	CPULoad              float64      `yaml:"cpu_load"`
	ContextSwitches      uint64       `yaml:"context_switches"`
	SchedulerInvocations uint64       `yaml:"scheduler_invocations"`
	TasksCreated         uint64       `yaml:"tasks_created"`
	TasksDeleted         uint64       `yaml:"tasks_deleted"`
	DeadlineMisses       uint64       `yaml:"deadline_misses"`
}

func printStats(cmd *cobra.Command, k *kernel.Kernel, format string) error {
	s := k.Stats()
	snap := statsSnapshot{
		SystemTime:           s.SystemTime,
		IdleTime:             s.IdleTime,
		CPULoad:              s.CPULoad(),
		ContextSwitches:      s.ContextSwitches,
		SchedulerInvocations: s.SchedulerInvocations,
		TasksCreated:         s.TasksCreated,
		TasksDeleted:         s.TasksDeleted,
		DeadlineMisses:       s.DeadlineMisses,
	}

	switch format {
	case "yaml":
		out, err := yaml.Marshal(snap)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
	default:
		fmt.Fprintf(cmd.OutOrStdout(),
			"ticks=%d idle=%d cpu_load=%.2f%% switches=%d invocations=%d created=%d deleted=%d deadline_misses=%d\n",
			snap.SystemTime, snap.IdleTime, snap.CPULoad*100,
			snap.ContextSwitches, snap.SchedulerInvocations,
			snap.TasksCreated, snap.TasksDeleted, snap.DeadlineMisses)
	}
	return nil
}
