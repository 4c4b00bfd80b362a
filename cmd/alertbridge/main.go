package main

import "alertbridge/internal/cli"

func main() {
	cli.Execute()
}
