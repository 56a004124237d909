package main

import "slackdb/internal/cli"

func main() {
	cli.Execute()
}
