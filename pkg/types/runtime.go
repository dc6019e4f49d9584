package types

import (
	"log/slog"
	"time"
)

// Credential holds a decrypted signing key. It renders as "[redacted]" in
// every textual form so it cannot reach logs or serialized records.
type Credential struct {
	key []byte
}

// NewCredential wraps raw key bytes. The slice is owned by the credential.
func NewCredential(key []byte) Credential { return Credential{key: key} }

// Bytes returns the raw key material.
func (c Credential) Bytes() []byte { return c.key }

// Empty reports whether no key material is present.
func (c Credential) Empty() bool { return len(c.key) == 0 }

// Zero overwrites the key material in place.
func (c Credential) Zero() {
	for i := range c.key {
		c.key[i] = 0
	}
}

func (c Credential) String() string               { return "[redacted]" }
func (c Credential) GoString() string             { return "[redacted]" }
func (c Credential) LogValue() slog.Value         { return slog.StringValue("[redacted]") }
func (c Credential) MarshalJSON() ([]byte, error) { return []byte(`"[redacted]"`), nil }
func (c Credential) MarshalText() ([]byte, error) { return []byte("[redacted]"), nil }

// TransferJob is the unit of work for one bridge action. It lives only for
// the duration of a single orchestration call.
type TransferJob struct {
	StrategyID       string
	OwnerID          string
	Credential       Credential
	Asset            string
	Amount           string
	SourceChain      string
	DestinationChain string
	Event            Event
}

// BalanceVerdict is the result of a balance preflight check. Amounts are
// decimal strings in whole token units.
type BalanceVerdict struct {
	Sufficient        bool   `json:"sufficient"`
	CurrentBalance    string `json:"currentBalance"`
	RequiredAmount    string `json:"requiredAmount"`
	RecommendedAmount string `json:"recommendedAmount"`
	Shortfall         string `json:"shortfall,omitempty"`
}

// Execution records the outcome of one action of one dispatch.
type Execution struct {
	ID          string          `json:"id"`
	StrategyID  string          `json:"strategyId"`
	OwnerID     string          `json:"ownerId"`
	EventID     string          `json:"eventId,omitempty"`
	Action      Action          `json:"action"`
	Status      ExecutionStatus `json:"status"`
	BurnTxHash  string          `json:"burnTxHash,omitempty"`
	MintTxHash  string          `json:"mintTxHash,omitempty"`
	ErrorKind   ErrorKind       `json:"errorKind,omitempty"`
	ErrorDetail string          `json:"errorDetail,omitempty"`
	Verdict     *BalanceVerdict `json:"verdict,omitempty"`
	Phases      []TransferPhase `json:"phases,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level      AlertLevel             `json:"level"`
	StrategyID string                 `json:"strategyId,omitempty"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}
