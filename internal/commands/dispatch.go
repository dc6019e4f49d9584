package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tripwire/internal/app"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// eventFlags are shared by dispatch and simulate.
type eventFlags struct {
	file    string
	kind    string
	account string
	content string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "event", "", "Event file (YAML or JSON)")
	cmd.Flags().StringVar(&f.kind, "kind", "", "Event kind, when no file is given")
	cmd.Flags().StringVar(&f.account, "account", "", "Source account")
	cmd.Flags().StringVar(&f.content, "content", "", "Event content")
}

func (f *eventFlags) event() (types.Event, error) {
	if f.file != "" {
		return loadEventFile(f.file)
	}
	if f.kind == "" {
		return types.Event{}, fmt.Errorf("either --event or --kind is required")
	}
	return types.Event{
		Kind:          types.EventKind(f.kind),
		SourceAccount: f.account,
		Content:       f.content,
	}, nil
}

// NewDispatchCmd creates the dispatch command.
func NewDispatchCmd() *cobra.Command {
	var (
		ev         eventFlags
		strategyID string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch an event to every matching strategy and run their actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := ev.event()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()
			return runDispatch(ctx, cmd.OutOrStdout(), a, event, strategyID)
		},
	}
	ev.register(cmd)
	cmd.Flags().StringVar(&strategyID, "strategy", "", "Run only this strategy, skipping trigger matching")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline for the dispatch")
	return cmd
}

func runDispatch(ctx context.Context, out io.Writer, a *app.App, ev types.Event, strategyID string) error {
	var (
		execs []types.Execution
		err   error
	)
	if strategyID != "" {
		s, gerr := a.Provider.GetStrategy(ctx, strategyID)
		if gerr != nil {
			return fmt.Errorf("loading strategy %s: %w", strategyID, gerr)
		}
		execs, err = a.Coordinator.Dispatch(ctx, *s, ev)
	} else {
		execs, err = a.Coordinator.DispatchEvent(ctx, ev)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(out, "Event %s dispatched\n", ev.Kind)
	printExecutions(out, execs)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	for _, e := range execs {
		if e.Status == types.ExecutionError {
			return fmt.Errorf("execution %s failed: %s", e.ID, e.ErrorKind)
		}
	}
	return nil
}
