package main

import "github.com/oshokin/shake-alarm/cmd/shake-background/cmd"

func main() {
	cmd.Execute()
}
