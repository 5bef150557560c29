package orders

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies workflow failures so callers can branch on cause.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindPaymentResultMissing
	KindTransactionIDMissing
	KindWalletPaymentFailed
	KindVerificationNotPending
	KindNotPendingVerification
	KindVerificationFailed
	KindAlreadyPaid
	KindRefund
	KindConflict
	KindFollowUpFailed
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindNotFound:               "not_found",
	KindValidation:             "validation_error",
	KindPaymentResultMissing:   "payment_result_missing",
	KindTransactionIDMissing:   "transaction_id_missing",
	KindWalletPaymentFailed:    "wallet_payment_failed",
	KindVerificationNotPending: "verification_not_pending",
	KindNotPendingVerification: "not_pending_verification",
	KindVerificationFailed:     "verification_failed",
	KindAlreadyPaid:            "already_paid",
	KindRefund:                 "refund_error",
	KindConflict:               "conflict",
	KindFollowUpFailed:         "follow_up_failed",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// parent returns the broader kind a sub-kind belongs to.
func (k Kind) parent() Kind {
	switch k {
	case KindPaymentResultMissing, KindTransactionIDMissing:
		return KindValidation
	}
	return k
}

// Error is the structured error returned by the store and every workflow.
type Error struct {
	Kind    Kind
	Op      string
	OrderID int64
	// Code carries an upstream error code, e.g. the gateway's wallet error code.
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.OrderID != 0 {
		fmt.Fprintf(&b, " (order %d)", e.OrderID)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [code=%s]", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind. A sentinel of a broad kind (ErrValidation)
// also matches its sub-kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind || t.Kind == e.Kind.parent()
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrPaymentResultMissing   = &Error{Kind: KindPaymentResultMissing}
	ErrTransactionIDMissing   = &Error{Kind: KindTransactionIDMissing}
	ErrWalletPaymentFailed    = &Error{Kind: KindWalletPaymentFailed}
	ErrVerificationNotPending = &Error{Kind: KindVerificationNotPending}
	ErrNotPendingVerification = &Error{Kind: KindNotPendingVerification}
	ErrVerificationFailed     = &Error{Kind: KindVerificationFailed}
	ErrAlreadyPaid            = &Error{Kind: KindAlreadyPaid}
	ErrRefund                 = &Error{Kind: KindRefund}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrFollowUpFailed         = &Error{Kind: KindFollowUpFailed}
)

// E builds an *Error.
func E(kind Kind, op string, orderID int64, msg string) *Error {
	return &Error{Kind: kind, Op: op, OrderID: orderID, Msg: msg}
}

// Wrap builds an *Error retaining err as the cause.
func Wrap(kind Kind, op string, orderID int64, err error, msg string) *Error {
	return &Error{Kind: kind, Op: op, OrderID: orderID, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
