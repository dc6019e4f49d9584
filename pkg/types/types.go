// Package types defines the public domain types for Tripwire, the
// event-driven strategy dispatcher and cross-chain transfer orchestrator.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxTriggersPerStrategy caps how many triggers one strategy may declare.
const MaxTriggersPerStrategy = 2

// Event is an immutable real-world signal received by the ingestion boundary.
type Event struct {
	ID            string    `json:"id" yaml:"id"`
	Kind          EventKind `json:"kind" yaml:"kind"`
	SourceAccount string    `json:"sourceAccount,omitempty" yaml:"sourceAccount,omitempty"`
	Content       string    `json:"content" yaml:"content"`
	OccurredAt    time.Time `json:"occurredAt" yaml:"occurredAt"`
}

// Trigger is one activation condition of a strategy.
type Trigger struct {
	Kind          EventKind `json:"kind" yaml:"kind"`
	SourceAccount string    `json:"sourceAccount,omitempty" yaml:"sourceAccount,omitempty"`
	Keywords      []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// Action is a tagged variant; Type selects which fields are meaningful.
// For ActionBridgeGasless, Amount is a decimal string in whole token units
// (e.g. "5" or "2.5") and both chains are registry names.
type Action struct {
	Type             ActionType `json:"type" yaml:"type"`
	Asset            string     `json:"asset" yaml:"asset"`
	Amount           string     `json:"amount,omitempty" yaml:"amount,omitempty"`
	SourceChain      string     `json:"sourceChain,omitempty" yaml:"sourceChain,omitempty"`
	DestinationChain string     `json:"destinationChain,omitempty" yaml:"destinationChain,omitempty"`
}

// Strategy binds triggers to the actions run when one of them fires.
type Strategy struct {
	ID       string    `json:"id" yaml:"id"`
	OwnerID  string    `json:"ownerId" yaml:"ownerId"`
	Name     string    `json:"name" yaml:"name"`
	Triggers []Trigger `json:"triggers" yaml:"triggers"`
	Actions  []Action  `json:"actions" yaml:"actions"`
	// EncryptedKey is the strategy's signing key sealed by the credential
	// store. It is never decrypted outside a dispatch.
	EncryptedKey string    `json:"encryptedKey,omitempty" yaml:"encryptedKey,omitempty"`
	OwnerAddress string    `json:"ownerAddress,omitempty" yaml:"ownerAddress,omitempty"`
	Active       bool      `json:"active" yaml:"active"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}

// Validate checks the structural invariants of a strategy registration.
func (s Strategy) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Triggers) == 0 {
		errs = append(errs, errors.New("at least one trigger is required"))
	}
	if len(s.Triggers) > MaxTriggersPerStrategy {
		errs = append(errs, fmt.Errorf("at most %d triggers allowed, got %d", MaxTriggersPerStrategy, len(s.Triggers)))
	}
	for i, t := range s.Triggers {
		if t.Kind == "" {
			errs = append(errs, fmt.Errorf("trigger %d: kind is required", i))
		}
	}
	if len(s.Actions) == 0 {
		errs = append(errs, errors.New("at least one action is required"))
	}
	for i, a := range s.Actions {
		if err := a.validate(); err != nil {
			errs = append(errs, fmt.Errorf("action %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (a Action) validate() error {
	switch a.Type {
	case ActionBridgeGasless:
		if a.Amount == "" {
			return errors.New("amount is required")
		}
		amount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return fmt.Errorf("invalid amount %q", a.Amount)
		}
		if amount.Sign() <= 0 {
			return fmt.Errorf("amount %q must be positive", a.Amount)
		}
		if a.SourceChain == "" || a.DestinationChain == "" {
			return errors.New("sourceChain and destinationChain are required")
		}
		if a.SourceChain == a.DestinationChain {
			return fmt.Errorf("source and destination chain are both %q", a.SourceChain)
		}
	case ActionConvertAll, ActionClosePosition:
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}
