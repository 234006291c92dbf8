// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command oidcserverd runs the OIDC Provider / OAuth 2.0 Authorization
// Server protocol engine as a standalone HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexauth/oidcserver/internal/obslog"
)

var rootCmd = &cobra.Command{
	Use:   "oidcserverd",
	Short: "OIDC Provider / OAuth 2.0 Authorization Server",
	Long: `oidcserverd runs the protocol engine as a standalone HTTP service: the
authorization, token, userinfo, introspection, revocation, discovery,
device-authorization, CIBA, PAR, and dynamic-client-registration endpoints,
backed by an in-memory or Redis persistence layer.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			fmt.Printf("error displaying help: %v\n", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		obslog.Errorw("oidcserverd exited with error", "error", err)
		os.Exit(1)
	}
}
