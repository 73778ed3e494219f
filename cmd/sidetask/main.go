package main

import (
	"os"

	"sidetask/cmd/sidetask/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, &cmd.Config{}))
}
