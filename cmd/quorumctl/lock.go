package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/quorum/internal/cluster"
)

func lockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lease lock operations",
		Long:  "Acquire, release and inspect named lease locks",
	}

	cmd.AddCommand(lockAcquireCmd())
	cmd.AddCommand(lockReleaseCmd())
	cmd.AddCommand(lockStatusCmd())

	return cmd
}

func lockAcquireCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "acquire <resource> <holder>",
		Short: "Acquire a lease lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			req := map[string]any{
				"resource":   args[0],
				"holder":     args[1],
				"timeout_ms": int(wait / time.Millisecond),
			}
			var resp struct {
				Acquired bool `json:"acquired"`
			}
			if err := cluster.PostJSON(ctx, apiURL("/locks/acquire"), req, &resp); err != nil {
				return err
			}
			if !resp.Acquired {
				return fmt.Errorf("lock %q is held by another holder", args[0])
			}
			fmt.Printf("acquired %q for %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Block up to this long for the lock (0 = try once)")
	return cmd
}

func lockReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <resource> <holder>",
		Short: "Release a lease lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			req := map[string]any{"resource": args[0], "holder": args[1]}
			if err := cluster.PostJSON(ctx, apiURL("/locks/release"), req, nil); err != nil {
				return err
			}
			fmt.Printf("released %q\n", args[0])
			return nil
		},
	}
}

func lockStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <resource>",
		Short: "Show a lock's current holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var resp struct {
				Resource string `json:"resource"`
				Held     bool   `json:"held"`
				Holder   string `json:"holder"`
			}
			if err := cluster.GetJSON(ctx, apiURL("/locks/"+args[0]), &resp); err != nil {
				return err
			}
			if resp.Held {
				fmt.Printf("%s: held by %s\n", resp.Resource, resp.Holder)
			} else {
				fmt.Printf("%s: free\n", resp.Resource)
			}
			return nil
		},
	}
}
