package types

// EventKind classifies an incoming real-world signal.
type EventKind string

// EventKind values enumerate the signals the ingestion boundary produces.
const (
	EventSocial     EventKind = "social"
	EventConnection EventKind = "connection"
)

// ActionType identifies the variant carried by an Action.
type ActionType string

// ActionType values enumerate the supported strategy actions. Only
// ActionBridgeGasless moves funds; the others resolve to a stub outcome.
const (
	ActionBridgeGasless ActionType = "bridge_gasless"
	ActionConvertAll    ActionType = "convert_all"
	ActionClosePosition ActionType = "close_position"
)

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

// ExecutionStatus values. An execution starts PENDING and is finalized
// exactly once to COMPLETED or ERROR.
const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionError     ExecutionStatus = "ERROR"
)

// TransferPhase is a state of the cross-chain transfer state machine.
type TransferPhase string

// TransferPhase values in the order a successful transfer visits them.
const (
	PhaseInitialized     TransferPhase = "INITIALIZED"
	PhaseSourceReady     TransferPhase = "SOURCE_READY"
	PhaseBalanceVerified TransferPhase = "BALANCE_VERIFIED"
	PhaseBurned          TransferPhase = "BURNED"
	PhaseAttested        TransferPhase = "ATTESTED"
	PhaseMinted          TransferPhase = "MINTED"
	PhaseFailed          TransferPhase = "FAILED"
)

// ErrorKind classifies why an execution ended in ERROR.
type ErrorKind string

const (
	ErrInsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"
	ErrUnsupportedChain    ErrorKind = "UNSUPPORTED_CHAIN"
	ErrGaslessNotSupported ErrorKind = "GASLESS_NOT_SUPPORTED"
	ErrCredentialMissing   ErrorKind = "CREDENTIAL_MISSING"
	ErrBurnFailed          ErrorKind = "BURN_FAILED"
	ErrAttestationTimeout  ErrorKind = "ATTESTATION_TIMEOUT"
	ErrMintFailed          ErrorKind = "MINT_FAILED"
	ErrNetwork             ErrorKind = "NETWORK_ERROR"
	ErrNotImplemented      ErrorKind = "NOT_IMPLEMENTED"
	ErrUnknown             ErrorKind = "UNKNOWN"
)

// Recoverable reports whether a failure of this kind leaves funds in a state
// that a retry from the failed phase can complete.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrBurnFailed, ErrAttestationTimeout, ErrMintFailed:
		return true
	default:
		return false
	}
}

// Finality selects the source-chain confirmation threshold for a burn.
type Finality string

const (
	FinalityFast     Finality = "fast"
	FinalityStandard Finality = "standard"
)

// Threshold returns the on-chain finality threshold value.
func (f Finality) Threshold() uint32 {
	if f == FinalityStandard {
		return 2000
	}
	return 1000
}

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole     AlertType = "console"
	AlertWebhook     AlertType = "webhook"
	AlertSNS         AlertType = "sns"
	AlertEventBridge AlertType = "eventbridge"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)
