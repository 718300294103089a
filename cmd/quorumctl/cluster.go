package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/quorum/internal/cluster"
)

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster operations",
		Long:  "Inspect cluster membership and leadership",
	}

	cmd.AddCommand(clusterStateCmd())
	cmd.AddCommand(clusterHealthCmd())

	return cmd
}

type clusterState struct {
	NodeID     string   `json:"node_id"`
	Role       string   `json:"role"`
	Term       uint64   `json:"term"`
	Leader     string   `json:"leader"`
	AliveNodes []string `json:"alive_nodes"`
	Tasks      struct {
		Pending   int `json:"pending"`
		Running   int `json:"running"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"tasks"`
}

func clusterStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the node's view of the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var state clusterState
			if err := cluster.GetJSON(ctx, apiURL("/cluster/state"), &state); err != nil {
				return err
			}

			leader := state.Leader
			if leader == "" {
				leader = "(none)"
			}
			fmt.Printf("Node:   %s\n", state.NodeID)
			fmt.Printf("Role:   %s\n", state.Role)
			fmt.Printf("Term:   %d\n", state.Term)
			fmt.Printf("Leader: %s\n", leader)
			fmt.Printf("Alive:  %s\n", strings.Join(state.AliveNodes, ", "))
			fmt.Printf("Tasks:  %d pending / %d running / %d completed / %d failed\n",
				state.Tasks.Pending, state.Tasks.Running, state.Tasks.Completed, state.Tasks.Failed)
			return nil
		},
	}
}

func clusterHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the node's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var health map[string]string
			if err := cluster.GetJSON(ctx, apiURL("/health"), &health); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", health["node"], health["status"])
			return nil
		},
	}
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
}

func apiURL(path string) string {
	base := serverAddr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/") + path
}
