package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/tripwire/internal/app"
	"github.com/dwsmith1983/tripwire/internal/config"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// buildApp loads tripwire.yaml and wires the runtime.
func buildApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return app.Build(ctx, cfg, opts...)
}

// loadStrategyFile decodes a strategy from a YAML or JSON file.
func loadStrategyFile(path string) (types.Strategy, error) {
	var s types.Strategy
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", path, err)
	}
	if isJSON(path) {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return s, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// loadEventFile decodes an event from a YAML or JSON file.
func loadEventFile(path string) (types.Event, error) {
	var ev types.Event
	data, err := os.ReadFile(path)
	if err != nil {
		return ev, fmt.Errorf("reading %s: %w", path, err)
	}
	if isJSON(path) {
		err = json.Unmarshal(data, &ev)
	} else {
		err = yaml.Unmarshal(data, &ev)
	}
	if err != nil {
		return ev, fmt.Errorf("parsing %s: %w", path, err)
	}
	if ev.Kind == "" {
		return ev, fmt.Errorf("%s: event kind is required", path)
	}
	return ev, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func statusString(s types.ExecutionStatus) string {
	switch s {
	case types.ExecutionCompleted:
		return color.GreenString(string(s))
	case types.ExecutionError:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

// printExecutions writes one line per execution plus its transfer details.
func printExecutions(w io.Writer, execs []types.Execution) {
	if len(execs) == 0 {
		fmt.Fprintln(w, "No executions.")
		return
	}
	for _, e := range execs {
		fmt.Fprintf(w, "  %-28s %-10s strategy=%-20s action=%s\n",
			e.ID, statusString(e.Status), e.StrategyID, e.Action.Type)
		if e.BurnTxHash != "" {
			fmt.Fprintf(w, "      burn: %s\n", e.BurnTxHash)
		}
		if e.MintTxHash != "" {
			fmt.Fprintf(w, "      mint: %s\n", e.MintTxHash)
		}
		if e.Verdict != nil && !e.Verdict.Sufficient {
			fmt.Fprintf(w, "      balance %s, required %s, top up %s\n",
				e.Verdict.CurrentBalance, e.Verdict.RequiredAmount, e.Verdict.Shortfall)
		}
		if e.ErrorKind != "" {
			fmt.Fprintf(w, "      %s %s\n", color.RedString(string(e.ErrorKind)), e.ErrorDetail)
		}
	}
}
