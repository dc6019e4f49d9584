package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tripwire/internal/app"
	"github.com/dwsmith1983/tripwire/internal/provider"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [strategy-id]",
		Short: "Show registered strategies, or one strategy's recent executions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			if len(args) > 0 {
				return showStrategyStatus(ctx, cmd.OutOrStdout(), a, args[0], limit)
			}
			return showAllStrategies(ctx, cmd.OutOrStdout(), a.Provider)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of executions to show")
	return cmd
}

func showAllStrategies(ctx context.Context, out io.Writer, prov provider.Provider) error {
	strategies, err := prov.ListStrategies(ctx, false)
	if err != nil {
		return fmt.Errorf("listing strategies: %w", err)
	}
	if len(strategies) == 0 {
		fmt.Fprintln(out, "No strategies registered.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(out, "Registered Strategies:")
	fmt.Fprintln(out)
	for _, s := range strategies {
		state := color.GreenString("ACTIVE")
		if !s.Active {
			state = color.YellowString("INACTIVE")
		}
		fmt.Fprintf(out, "  %-28s %-10s %-30s triggers=%d actions=%d\n",
			s.ID, state, s.Name, len(s.Triggers), len(s.Actions))
	}
	fmt.Fprintln(out)
	return nil
}

func showStrategyStatus(ctx context.Context, out io.Writer, a *app.App, id string, limit int) error {
	s, err := a.Provider.GetStrategy(ctx, id)
	if err != nil {
		return fmt.Errorf("strategy not found: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(out, "Strategy: %s (%s)\n", s.Name, s.ID)
	fmt.Fprintf(out, "  Owner:   %s\n", s.OwnerID)
	fmt.Fprintf(out, "  Active:  %t\n", s.Active)
	printFunding(ctx, out, a.Chains, *s)
	for i, t := range s.Triggers {
		fmt.Fprintf(out, "  Trigger %d: kind=%s account=%q keywords=%v\n", i, t.Kind, t.SourceAccount, t.Keywords)
	}
	for i, act := range s.Actions {
		fmt.Fprintf(out, "  Action %d:  %s %s %s %s -> %s\n", i, act.Type, act.Amount, act.Asset, act.SourceChain, act.DestinationChain)
	}

	execs, err := a.Provider.ListExecutions(ctx, id, limit)
	if err != nil {
		return fmt.Errorf("listing executions: %w", err)
	}
	fmt.Fprintln(out)
	_, _ = bold.Fprintln(out, "Recent Executions:")
	printExecutions(out, execs)
	return nil
}
