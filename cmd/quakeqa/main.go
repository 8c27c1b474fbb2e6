// Command quakeqa answers natural-language questions about an earthquake catalog,
// grounded only in records retrieved from that catalog.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
