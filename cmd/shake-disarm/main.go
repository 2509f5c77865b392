package main

import "github.com/oshokin/shake-alarm/cmd/shake-disarm/cmd"

func main() {
	cmd.Execute()
}
