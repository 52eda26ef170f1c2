package main

import "github.com/pinaxlabs/organizer/cmd"

func main() {
	cmd.Execute()
}
