// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stackmesh/authgate/pkg/authserver"
	"github.com/stackmesh/authgate/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authorization server",
	Long: `Run the authorization server. All configuration is read from the
environment; see the deployment documentation for the recognized keys.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		logger.Initialize(debug)

		cfg, err := authserver.LoadConfig()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := authserver.NewServer(ctx, cfg)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	},
}
