// Command ragflow runs the retrieval augmented generation pipeline as an
// HTTP service or as one-shot index and query commands.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
