package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dwsmith1983/tripwire/internal/attestation"
	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/gateway"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Failure is the terminal error value of a transfer phase.
type Failure struct {
	Kind   types.ErrorKind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind types.ErrorKind, err error, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// Classify maps an error to the kind recorded on an execution.
func Classify(err error) types.ErrorKind {
	var f *Failure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &f):
		return f.Kind
	case errors.Is(err, chain.ErrUnsupportedChain):
		return types.ErrUnsupportedChain
	case errors.Is(err, chain.ErrGaslessNotSupported):
		return types.ErrGaslessNotSupported
	case errors.Is(err, gateway.ErrInvalidCredential):
		return types.ErrCredentialMissing
	case errors.Is(err, attestation.ErrExhausted), errors.Is(err, context.DeadlineExceeded):
		return types.ErrAttestationTimeout
	case errors.Is(err, attestation.ErrRejected):
		return types.ErrNetwork
	default:
		return types.ErrUnknown
	}
}
