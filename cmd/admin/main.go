// Command admin runs maintenance tasks against the aggregator's database and
// providers without going through the HTTP API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand(connectCore).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
