package main

import "github.com/oshokin/shake-alarm/cmd/shake-arm/cmd"

func main() {
	cmd.Execute()
}
