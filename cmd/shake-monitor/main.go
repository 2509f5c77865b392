package main

import "github.com/oshokin/shake-alarm/cmd/shake-monitor/cmd"

func main() {
	cmd.Execute()
}
