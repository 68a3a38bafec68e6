// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holding-console/holding/internal/auth"
)

// NewHashCmd creates the hash subcommand.
func NewHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash a password read from stdin",
		Long: `Reads one password line from stdin and prints its tagged hash, ready to
store in holding_users.password_hash. The scheme defaults to auth.hash_scheme.`,
		RunE: runHash,
	}

	cmd.Flags().String("scheme", "", "hash scheme: "+strings.Join(auth.Schemes(), ", "))

	return cmd
}

func runHash(cmd *cobra.Command, _ []string) error {
	loaded, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	authCfg := loaded.Auth
	if scheme, _ := cmd.Flags().GetString("scheme"); scheme != "" { //nolint:errcheck // flag is registered above
		authCfg.HashScheme = scheme
	}

	hasher, err := newHasher(authCfg)
	if err != nil {
		return err
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return oops.Code("HASH_INPUT_FAILED").Errorf("no password on stdin")
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := hasher.Hash(password)
	if err != nil {
		return err //nolint:wrapcheck // hasher errors carry their own codes
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return err //nolint:wrapcheck // stdout write
}
