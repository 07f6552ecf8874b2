// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Command gen-schema writes the configuration JSON Schema to
// schemas/config.schema.json so editors and docs can reference it
// without importing the module.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/guildgate/guildgate/internal/config"
)

func main() {
	outPath := filepath.Join("schemas", "config.schema.json")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, config.SchemaJSON(), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s\n", outPath)
}
