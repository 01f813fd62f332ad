package main

import "github.com/planwarden/planwarden/cmd/planwarden/commands"

func main() {
	commands.Execute()
}
