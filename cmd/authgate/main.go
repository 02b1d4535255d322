// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the authgate server.
package main

import (
	"os"

	"github.com/stackmesh/authgate/cmd/authgate/app"
	"github.com/stackmesh/authgate/pkg/logger"
)

func main() {
	logger.Initialize(false)

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
