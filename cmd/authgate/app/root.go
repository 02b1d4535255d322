// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the command-line interface for the authgate server.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "authgate",
	DisableAutoGenTag: true,
	Short:             "OAuth 2.1 authorization server for MCP identity gateways",
	Long: `authgate is the OAuth 2.1 authorization server core of an identity gateway
fronting Model Context Protocol services. It issues and validates tokens,
manages dynamically registered clients, federates end-user identity to an
upstream provider, and exposes a ForwardAuth verification endpoint for the
reverse proxy gating downstream services.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// NewRootCmd creates the root command for the authgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
	return rootCmd
}
