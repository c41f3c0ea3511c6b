// statevault: versioned persisted-state store with schema migrations
//
// Loads a wallet's persisted state envelope from a backing store, applies
// pending schema migrations, and exposes the live state to AI coding tools
// over MCP.
//
// Usage:
//
//	statevault serve     # Start MCP server (stdio transport)
//	statevault migrate   # Apply pending migrations and exit
//	statevault dump      # Print the persisted envelope as JSON
//	statevault config init  # Write a config file with the defaults
//	statevault version   # Print the version
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
