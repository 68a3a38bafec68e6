// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holding-console/holding/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE:  runConfigShow,
	}
	config.RegisterStoreFlags(show.Flags())
	config.RegisterServeFlags(show.Flags())

	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of the config file",
			RunE:  runConfigSchema,
		},
		show,
	)

	return cmd
}

func runConfigSchema(cmd *cobra.Command, _ []string) error {
	schema, err := config.GenerateSchema()
	if err != nil {
		return err //nolint:wrapcheck // config errors carry their own codes
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return err //nolint:wrapcheck // stdout write
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	loaded, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(loaded.Redacted())
	if err != nil {
		return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}

	w := cmd.OutOrStdout()
	if loaded.Source != "" {
		if _, err := fmt.Fprintf(w, "# source: %s\n", loaded.Source); err != nil {
			return err //nolint:wrapcheck // stdout write
		}
	}
	_, err = w.Write(out)
	return err //nolint:wrapcheck // stdout write
}
