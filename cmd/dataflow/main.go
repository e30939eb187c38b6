// Command dataflow runs pipeline files and the bundled demo pipelines.
package main

import (
	"fmt"
	"os"

	_ "github.com/aixgo-dev/dataflow/agents"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
