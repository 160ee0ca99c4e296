package main

import "github.com/cbusillo/discord-blue/cmd"

func main() {
	cmd.Execute()
}
