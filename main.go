// The main package for the jadwal-sholat-crawler executable.
package main

import (
	"github.com/JakeFAU/jadwal-sholat-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
