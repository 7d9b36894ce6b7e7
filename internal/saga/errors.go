package saga

import (
	"fmt"

	"github.com/vaultlink/vaultlink/internal/notify"
)

// Kind classifies a saga failure for messaging and escalation.
type Kind int

const (
	// KindInvalidAmount rejects a non-positive or malformed amount before
	// any store is touched.
	KindInvalidAmount Kind = iota
	// KindInsufficientLocal is a wallet-side balance rejection.
	KindInsufficientLocal
	// KindInsufficientRemote is a bank-side balance rejection.
	KindInsufficientRemote
	// KindTransport covers an unreachable or erroring remote side, and a
	// wallet plugin that is not available.
	KindTransport
	// KindReconciliation means a compensation step itself failed: the two
	// stores disagree and an operator has to reconcile them by hand.
	KindReconciliation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInsufficientLocal:
		return "insufficient_funds_wallet"
	case KindInsufficientRemote:
		return "insufficient_funds_bank"
	case KindTransport:
		return "transport_failure"
	case KindReconciliation:
		return "reconciliation_failure"
	default:
		return "unknown"
	}
}

// Failure is the error type every saga operation returns on rejection.
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Severity maps the failure onto the outcome classification the messaging
// sink understands. Reconciliation and transport problems are errors; the
// rest are user mistakes reported as warnings.
func (f *Failure) Severity() notify.Severity {
	switch f.Kind {
	case KindTransport, KindReconciliation:
		return notify.Error
	default:
		return notify.Warning
	}
}

func failf(kind Kind, op string, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func wrap(kind Kind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}
