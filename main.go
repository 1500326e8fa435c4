package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if guidance := exitGuidance(err); guidance != "" {
			fmt.Fprintf(os.Stderr, "drivesync: %v\n%s\n", err, guidance)
		} else {
			fmt.Fprintf(os.Stderr, "drivesync: %v\n", err)
		}

		os.Exit(1)
	}
}
