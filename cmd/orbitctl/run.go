package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyota-systems/orbitkernel/kernel"
)

func newRunCmd() *cobra.Command {
	var (
		ticks      uint64
		policyName string
		live       bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synthetic workload for a bounded number of ticks and print stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			policy, err := parsePolicy(policyName)
			if err != nil {
				return err
			}
			cfg.Policy = policy

			k := kernel.NewKernel(cfg, log)
			k.SetRealTimePacing(live)
			buildWorkload(k)

			done := make(chan error, 1)
			go func() { done <- k.Start() }()

			for k.Stats().SystemTime < kernel.Ticks(ticks) {
				time.Sleep(time.Millisecond)
			}
			k.Stop()
			<-done

			return printStats(cmd, k, format)
		},
	}

	cmd.Flags().Uint64Var(&ticks, "ticks", 500, "number of ticks to run before stopping")
	cmd.Flags().StringVar(&policyName, "policy", "priority", "scheduling policy: priority, rr, edf, rms")
	cmd.Flags().BoolVar(&live, "live", false, "pace ticks at the configured tick period instead of running at full speed")
	cmd.Flags().StringVar(&format, "format", "text", "stats output format: text, yaml")
	return cmd
}

func parsePolicy(s string) (kernel.Policy, error) {
	switch s {
	case "priority":
		return kernel.PolicyPriority, nil
	case "rr", "round-robin":
		return kernel.PolicyRoundRobin, nil
	case "edf":
		return kernel.PolicyEDF, nil
	case "rms":
		return kernel.PolicyRMS, nil
	default:
		return 0, fmt.Errorf("unknown policy %q (want priority, rr, edf, rms)", s)
	}
}

// buildWorkload wires a minimal synthetic task set that exercises every
// IPC primitive: a producer/consumer pair over a queue, a mutex
// priority-inheritance demonstration, a periodic task with a deadline,
// and an event-group rendezvous. Just enough to drive the core end to
// end.
func buildWorkload(k *kernel.Kernel) {
	q, _ := k.CreateQueue("telemetry", 4, 4)
	mx, _ := k.CreateMutex("bus")
	evt, _ := k.CreateEventGroup("phase")
	sem, _ := k.CreateSemaphore("slots", 0, 1)

	k.TaskCreate("producer", 2, func(arg any) {
		self := k.CurrentTask()
		for i := 0; i < 20; i++ {
			msg := []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
			k.QueueSend(self, q, msg, kernel.MaxTimeout)
			k.SemaphoreGive(self, sem)
			k.TaskDelay(self, 3)
		}
	}, nil)

	k.TaskCreate("consumer", 1, func(arg any) {
		self := k.CurrentTask()
		buf := make([]byte, 4)
		for i := 0; i < 20; i++ {
			k.QueueReceive(self, q, buf, kernel.MaxTimeout)
			k.SemaphoreTake(self, sem, kernel.MaxTimeout)
		}
	}, nil)

	k.TaskCreate("low", 5, func(arg any) {
		self := k.CurrentTask()
		for i := 0; i < 5; i++ {
			k.MutexLock(self, mx, kernel.MaxTimeout)
			k.TaskDelay(self, 10)
			k.MutexUnlock(self, mx)
			k.TaskDelay(self, 5)
		}
	}, nil)

	k.TaskCreate("high", 0, func(arg any) {
		self := k.CurrentTask()
		for i := 0; i < 5; i++ {
			k.TaskDelay(self, 2)
			k.MutexLock(self, mx, kernel.MaxTimeout)
			k.MutexUnlock(self, mx)
			k.TaskDelay(self, 20)
		}
	}, nil)

	sensorTask, _ := k.TaskCreate("sensor", 3, func(arg any) {
		self := k.CurrentTask()
		for {
			k.EventSetFlags(self, evt, 0b0001)
			// Suspend until the tick handler's periodic-release sweep
			// moves this task back to Ready at its next release, rather
			// than racing the period with a delay.
			k.TaskSuspend(self, self)
		}
	}, nil)
	k.TaskSetPeriodic(sensorTask, 25, 10)

	k.TaskCreate("watcher", 4, func(arg any) {
		self := k.CurrentTask()
		for i := 0; i < 10; i++ {
			k.EventWait(self, evt, 0b0001, kernel.EventWaitAll|kernel.EventClearOnExit, kernel.MaxTimeout)
		}
	}, nil)
}
