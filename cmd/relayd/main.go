// Command relayd runs the outbox and inbox relays of the users and
// notifications modules, and the bus consumer feeding the inbox.
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
