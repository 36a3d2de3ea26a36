// Command trajectory segments GPS logger files into trips, visits and
// locations and writes the results as CSV reports.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
