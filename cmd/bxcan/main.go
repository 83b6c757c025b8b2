// Command bxcan exercises the CAN driver against the controller
// model: in loopback, on a websocket virtual bus, or bridged to a
// serial SLCAN adapter.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
