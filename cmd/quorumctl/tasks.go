package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dreamware/quorum/internal/cluster"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Task operations",
		Long:  "Submit work to the cluster and query its status",
	}

	cmd.AddCommand(tasksSubmitCmd())
	cmd.AddCommand(tasksStatusCmd())

	return cmd
}

func tasksSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <payload>",
		Short: "Submit a task payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			req := map[string][]byte{"payload": []byte(args[0])}
			var resp struct {
				ID string `json:"id"`
			}
			if err := cluster.PostJSON(ctx, apiURL("/tasks"), req, &resp); err != nil {
				return err
			}
			fmt.Println(resp.ID)
			return nil
		},
	}
}

func tasksStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var task struct {
				ID           string `json:"id"`
				Status       string `json:"status"`
				AssignedNode string `json:"assigned_node"`
				Result       []byte `json:"result"`
				Error        string `json:"error"`
			}
			if err := cluster.GetJSON(ctx, apiURL("/tasks/"+args[0]), &task); err != nil {
				return err
			}

			fmt.Printf("Task:   %s\n", task.ID)
			fmt.Printf("Status: %s\n", task.Status)
			if task.AssignedNode != "" {
				fmt.Printf("Node:   %s\n", task.AssignedNode)
			}
			if len(task.Result) > 0 {
				fmt.Printf("Result: %s\n", task.Result)
			}
			if task.Error != "" {
				fmt.Printf("Error:  %s\n", task.Error)
			}
			return nil
		},
	}
}
