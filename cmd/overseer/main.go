package main

import "github.com/overseer-cli/overseer/internal/cli"

func main() {
	cli.Execute()
}
