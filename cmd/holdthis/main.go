package main

import "github.com/rzpsarthak13/holdthis/cmd/holdthis/commands"

func main() {
	commands.Execute()
}
