package main

import "github.com/mcastellin/uptime-gossip/cmd/agent/cmd"

func main() {
	cmd.Execute()
}
