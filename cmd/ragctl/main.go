// Command ragctl operates the document index from the command line: it
// uploads and removes documents, asks questions, rebuilds the index and
// mints API tokens for testing.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
