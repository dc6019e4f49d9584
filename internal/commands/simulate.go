package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tripwire/internal/server/handlers"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// NewSimulateCmd creates the simulate command.
func NewSimulateCmd() *cobra.Command {
	var (
		ev      eventFlags
		addr    string
		apiKey  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Submit an event to a running Tripwire server",
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := ev.event()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return submitEvent(ctx, cmd.OutOrStdout(), http.DefaultClient, addr, apiKey, event)
		},
	}
	ev.register(cmd)
	cmd.Flags().StringVar(&addr, "server", "http://localhost:3000", "Server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Value for the X-API-Key header")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Request deadline")
	return cmd
}

func submitEvent(ctx context.Context, out io.Writer, client *http.Client, baseURL, apiKey string, ev types.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	url := strings.TrimRight(baseURL, "/") + "/api/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var dr handlers.DispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	printExecutions(out, dr.Executions)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, dr.Error)
	}
	return nil
}
