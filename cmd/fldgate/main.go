package main

import "fluid-gateway/internal/cli"

func main() {
	cli.Execute()
}
