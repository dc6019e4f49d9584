// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/dwsmith1983/tripwire/internal/provider"
)

// RunAll runs the complete provider conformance suite as subtests.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("StrategyCRUD", func(t *testing.T) { TestStrategyCRUD(t, prov) })
	t.Run("StrategyListOrder", func(t *testing.T) { TestStrategyListOrder(t, prov) })
	t.Run("EventAppendAndList", func(t *testing.T) { TestEventAppendAndList(t, prov) })
	t.Run("ExecutionFinalizeOnce", func(t *testing.T) { TestExecutionFinalizeOnce(t, prov) })
	t.Run("ExecutionDuplicateCreate", func(t *testing.T) { TestExecutionDuplicateCreate(t, prov) })
	t.Run("ExecutionListNewestFirst", func(t *testing.T) { TestExecutionListNewestFirst(t, prov) })
	t.Run("NotFound", func(t *testing.T) { TestNotFound(t, prov) })
}
