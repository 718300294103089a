package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/quorum/internal/cluster"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Replicated cache operations",
		Long:  "Read and write the node's cache; reads pull through to peers on a miss",
	}

	cmd.AddCommand(cachePutCmd())
	cmd.AddCommand(cacheGetCmd())
	cmd.AddCommand(cacheDelCmd())

	return cmd
}

func cachePutCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a value in the node's local cache",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			req := map[string]any{
				"value":  []byte(args[1]),
				"ttl_ms": int(ttl / time.Millisecond),
			}
			if err := putJSON(ctx, apiURL("/cache/"+args[0]), req); err != nil {
				return err
			}
			fmt.Printf("stored %q (ttl %s)\n", args[0], ttl)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Minute, "Entry time-to-live")
	return cmd
}

func cacheGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch a value (pulls through to peers on a local miss)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var resp struct {
				Key   string `json:"key"`
				Value []byte `json:"value"`
				Found bool   `json:"found"`
			}
			if err := cluster.GetJSON(ctx, apiURL("/cache/"+args[0]), &resp); err != nil {
				return err
			}
			if !resp.Found {
				return fmt.Errorf("key %q not found", args[0])
			}
			fmt.Println(string(resp.Value))
			return nil
		},
	}
}

func cacheDelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>",
		Short: "Remove a key from the node's local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodDelete, apiURL("/cache/"+args[0]), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode >= 300 {
				return fmt.Errorf("delete failed: %d", resp.StatusCode)
			}
			fmt.Printf("removed %q\n", args[0])
			return nil
		},
	}
}

// putJSON issues an HTTP PUT with a JSON body; the node's cache write
// surface uses PUT rather than POST.
func putJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return nil
}
