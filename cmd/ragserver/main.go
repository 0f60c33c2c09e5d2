// Command ragserver is the entry point for the RAG chat server.
// It provides a CLI interface (via Cobra) for ingesting documents into the
// vector store, querying it, and serving the chat API over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/oliverwm/ragserver/cmd/ragserver/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
