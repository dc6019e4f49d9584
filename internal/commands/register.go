package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tripwire/internal/app"
	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

const registerTimeout = 10 * time.Second

// NewRegisterCmd creates the register command.
func NewRegisterCmd() *cobra.Command {
	var (
		file     string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a strategy from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStrategyFile(file)
			if err != nil {
				return err
			}
			s.Active = !inactive

			ctx, cancel := context.WithTimeout(cmd.Context(), registerTimeout)
			defer cancel()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			_, err = registerStrategy(ctx, cmd.OutOrStdout(), a, s)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Strategy file (required)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Register the strategy without activating it")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// registerStrategy validates s, seals a fresh signing key when s carries
// none, and stores it. Existing IDs are rejected.
func registerStrategy(ctx context.Context, out io.Writer, a *app.App, s types.Strategy) (types.Strategy, error) {
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	s.CreatedAt = time.Now().UTC()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid strategy: %w", err)
	}
	if err := a.Chains.ValidateStrategy(s); err != nil {
		return s, fmt.Errorf("invalid strategy: %w", err)
	}

	if _, err := a.Provider.GetStrategy(ctx, s.ID); err == nil {
		return s, fmt.Errorf("strategy %s already exists", s.ID)
	} else if !errors.Is(err, provider.ErrNotFound) {
		return s, fmt.Errorf("checking strategy: %w", err)
	}

	if s.EncryptedKey == "" {
		sealed, owner, err := a.Credentials.Generate(s.ID)
		if err != nil {
			return s, fmt.Errorf("generating signing key: %w", err)
		}
		s.EncryptedKey = sealed
		s.OwnerAddress = owner.Hex()
	}

	if err := a.Provider.PutStrategy(ctx, s); err != nil {
		return s, fmt.Errorf("storing strategy: %w", err)
	}

	color.New(color.FgGreen).Fprintf(out, "✓ Strategy %q registered as %s\n", s.Name, s.ID)
	printFunding(ctx, out, a.Chains, s)
	if !s.Active {
		color.New(color.FgYellow).Fprintln(out, "  inactive: run 'tripwire activate "+s.ID+"' to enable")
	}
	return s, nil
}

// NewActivateCmd creates the activate command.
func NewActivateCmd() *cobra.Command {
	return newToggleCmd("activate", "Enable a strategy for event matching", true)
}

// NewDeactivateCmd creates the deactivate command.
func NewDeactivateCmd() *cobra.Command {
	return newToggleCmd("deactivate", "Stop a strategy from matching events", false)
}

func newToggleCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <strategy-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), registerTimeout)
			defer cancel()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			if err := a.Provider.SetStrategyActive(ctx, args[0], active); err != nil {
				return fmt.Errorf("updating strategy %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Strategy %s active=%t\n", args[0], active)
			return nil
		},
	}
}
