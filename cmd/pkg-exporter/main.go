package main

import "pkg-exporter/internal/cli"

func main() {
	cli.Execute()
}
