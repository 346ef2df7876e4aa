// The main package for the ytdl executable.
package main

import (
	"github.com/JakeFAU/ytdl-client/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
