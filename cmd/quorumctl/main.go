// Package main implements quorumctl, the operator CLI for a Quorum node.
// It talks to a node's HTTP API:
//
//	quorumctl --server http://localhost:8081 cluster state
//	quorumctl tasks submit '{"job":"reindex"}'
//	quorumctl tasks status <id>
//	quorumctl lock acquire db-migration ops-1
//	quorumctl cache put user:1 alice --ttl 60s
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    int
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "quorumctl",
		Short: "quorumctl - Quorum cluster CLI",
		Long:  `quorumctl inspects and drives a Quorum coordination node: cluster state, tasks, lease locks and the replicated cache`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "Node API address")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 10, "Request timeout in seconds")

	// Add subcommands
	rootCmd.AddCommand(clusterCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(lockCmd())
	rootCmd.AddCommand(cacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
