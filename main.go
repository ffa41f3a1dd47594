// The main package for the prospect discovery CLI.
package main

import (
	"github.com/OliWebDevO/clients-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
