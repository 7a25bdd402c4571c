// Command orbitctl boots the kernel with a small synthetic workload,
// runs it for a bounded number of ticks, and prints a stats summary —
// just enough synthetic tasks to exercise every primitive.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
