package main

import "github.com/qobs-build/buildkit/internal/cli"

func main() {
	cli.Execute()
}
