// Command agentrelay inspects a relay configuration and runs agents from the
// command line.
//
//	agentrelay --config relay.yaml agents
//	agentrelay --config relay.yaml resolve --channel discord --guild g1 --peer alice
//	agentrelay --config relay.yaml chain support
//	agentrelay --config relay.yaml chat --channel cli "hello"
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
