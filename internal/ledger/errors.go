package ledger

import "errors"

// Kind groups ledger failures by what the caller did wrong.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindTemporal      Kind = "temporal"
	KindResource      Kind = "resource"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is a ledger failure. Values are compared by identity, so callers use
// errors.Is against the package-level sentinels.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

var (
	ErrUnauthorized = newError(KindAuthorization, "Unauthorized", "caller is not authorized for this operation")

	ErrInvalidPercentage     = newError(KindValidation, "InvalidPercentage", "percentage discount must be between 1 and 100")
	ErrInvalidDiscountValue  = newError(KindValidation, "InvalidDiscountValue", "fixed discount value must be positive")
	ErrInvalidDiscountScope  = newError(KindValidation, "InvalidDiscountScope", "discount code must apply to deposit or balance")
	ErrInvalidUsageLimit     = newError(KindValidation, "InvalidUsageLimit", "discount code needs at least one use")
	ErrZeroPrice             = newError(KindValidation, "ZeroPrice", "price must be greater than zero")
	ErrInvalidAmount         = newError(KindValidation, "InvalidAmount", "amount must be greater than zero")
	ErrInvalidMaxSize        = newError(KindValidation, "InvalidMaxSize", "batch size must exceed the current participant count")
	ErrInvalidCommitment     = newError(KindValidation, "InvalidCommitment", "commitment hash must not be empty")
	ErrInvalidAddress        = newError(KindValidation, "InvalidAddress", "address must not be the zero address")
	ErrInvalidCode           = newError(KindValidation, "InvalidCode", "discount code must not be empty")
	ErrCodeNotApplicable     = newError(KindValidation, "CodeNotApplicable", "discount code does not apply to this payment")
	ErrCodeAlreadyRegistered = newError(KindValidation, "CodeAlreadyRegistered", "discount code is already registered")

	ErrBatchNotPending           = newError(KindState, "BatchNotPending", "batch is not accepting participants")
	ErrBatchNotActive            = newError(KindState, "BatchNotActive", "batch is not active")
	ErrInvalidTransition         = newError(KindState, "InvalidTransition", "requested state is not the next state of the batch")
	ErrAlreadyJoined             = newError(KindState, "AlreadyJoined", "address already joined this batch")
	ErrNotParticipant            = newError(KindState, "NotParticipant", "address is not a participant of this batch")
	ErrAlreadySlashed            = newError(KindState, "AlreadySlashed", "participant is already slashed")
	ErrUserAlreadyPaid           = newError(KindState, "UserAlreadyPaid", "participant already paid the balance")
	ErrCommitmentRequiresPayment = newError(KindState, "CommitmentRequiresPayment", "balance must be paid before storing a commitment")
	ErrParticipantsUnpaid        = newError(KindState, "ParticipantsUnpaid", "not every participant has paid the balance")
	ErrBalancePriceLocked        = newError(KindState, "BalancePriceLocked", "balance price is fixed once the batch is active")
	ErrParticipantSettled        = newError(KindState, "ParticipantSettled", "participant can no longer be removed")
	ErrCodeInactive              = newError(KindState, "CodeInactive", "discount code is inactive")
	ErrCodeExhausted             = newError(KindState, "CodeExhausted", "discount code has no uses left")
	ErrCodeAlreadyUsed           = newError(KindState, "CodeAlreadyUsed", "discount code was already used by this address")
	ErrPaused                    = newError(KindState, "Paused", "ledger is paused")
	ErrNotPaused                 = newError(KindState, "NotPaused", "ledger is not paused")
	ErrLastAdmin                 = newError(KindState, "LastAdmin", "cannot revoke the last admin")
	ErrAlreadyAdmin              = newError(KindState, "AlreadyAdmin", "address is already an admin")
	ErrNotAdmin                  = newError(KindState, "NotAdmin", "address is not an admin")

	ErrPaymentWindowExpired    = newError(KindTemporal, "PaymentWindowExpired", "payment window has expired")
	ErrPaymentWindowNotExpired = newError(KindTemporal, "PaymentWindowNotExpired", "payment window has not expired yet")
	ErrPatienceWindowExpired   = newError(KindTemporal, "PatienceWindowExpired", "patience window has expired")

	ErrInsufficientAllowance = newError(KindResource, "InsufficientAllowance", "token allowance is below the amount due")
	ErrInsufficientBalance   = newError(KindResource, "InsufficientBalance", "requested amount exceeds available funds")

	ErrBatchNotFound = newError(KindNotFound, "BatchNotFound", "batch not found")
	ErrCodeNotFound  = newError(KindNotFound, "CodeNotFound", "discount code not found")

	ErrSettlementFailed = newError(KindInternal, "SettlementFailed", "token settlement failed")
)

// KindOf classifies err. Errors that are not ledger errors are internal.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

// CodeOf returns the stable error code of err, or "Internal".
func CodeOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return "Internal"
}
