// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Hushkey CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hushkey",
		Short: "Hushkey - zero-knowledge credential service",
		Long: `Hushkey is an authentication service that never sees plaintext
passwords: clients keep their keys, the server stores opaque credential
bundles and issues sessions against signed proofs of key possession.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
