package main

import (
	"github.com/redclawsec/redclaw/cmd"
)

// main is the entry point for the redclaw CLI.
func main() {
	cmd.Execute()
}
