// Command transit runs the bus transit assistant: the HTTP API, the
// proactive notifier, the notification worker and the admin tooling.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
