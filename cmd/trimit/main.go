package main

import "trim-it/internal/cli"

func main() {
	cli.Main()
}
