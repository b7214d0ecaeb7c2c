package main

import "github.com/tessro/decklink/internal/cli"

func main() {
	cli.Execute()
}
