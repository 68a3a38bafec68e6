// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

// Command gen-schema writes the configuration JSON Schema, or checks a
// config file against it.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/holding-console/holding/internal/config"
)

func main() {
	out := pflag.StringP("out", "o", filepath.Join("schemas", "config.schema.json"), "output path")
	check := pflag.String("check", "", "validate this config file against the schema instead of writing it")
	pflag.Parse()

	if *check != "" {
		data, err := os.ReadFile(*check)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *check, err)
			os.Exit(1)
		}
		if err := config.ValidateYAML(data); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", *check, err)
			os.Exit(1)
		}
		fmt.Printf("%s is valid\n", *check)
		return
	}

	schema, err := config.GenerateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, append(schema, '\n'), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s\n", *out)
}
