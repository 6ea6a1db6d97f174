package main

import (
	"os"

	"concept-digest-be/cmd/digest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
