package safety

import (
	"errors"
	"fmt"
)

// Code identifies an expected business outcome. Codes are part of the API
// contract and never change spelling.
type Code string

const (
	CodeMissingSpotID     Code = "MissingSpotId"
	CodeMissingReason     Code = "MissingReason"
	CodeInvalidReason     Code = "InvalidReason"
	CodeMissingAlertID    Code = "MissingAlertId"
	CodeMissingProposalID Code = "MissingProposalId"
	CodeMissingActorID    Code = "MissingActorId"
	CodeInvalidVote       Code = "InvalidVote"

	CodeDuplicateReport        Code = "DuplicateReport"
	CodeAlreadyConfirmed       Code = "AlreadyConfirmed"
	CodeCannotConfirmOwnReport Code = "CannotConfirmOwnReport"
	CodeAlertClosed            Code = "AlertClosed"
	CodeAlreadyProposed        Code = "AlreadyProposed"
	CodeProposalClosed         Code = "ProposalClosed"
	CodeInvalidTransition      Code = "InvalidTransition"

	CodeAlertNotFound    Code = "AlertNotFound"
	CodeProposalNotFound Code = "ProposalNotFound"
	CodeSpotNotFound     Code = "SpotNotFound"
)

type Kind int

const (
	KindValidation Kind = iota
	KindConflict
	KindNotFound
)

func (c Code) Kind() Kind {
	switch c {
	case CodeAlertNotFound, CodeProposalNotFound, CodeSpotNotFound:
		return KindNotFound
	case CodeDuplicateReport, CodeAlreadyConfirmed, CodeCannotConfirmOwnReport, CodeAlertClosed,
		CodeAlreadyProposed, CodeProposalClosed, CodeInvalidTransition:
		return KindConflict
	default:
		return KindValidation
	}
}

// Error is a rejected command. Anything else returned by this package is an
// infrastructure failure.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrMissingSpotID          = &Error{Code: CodeMissingSpotID, Message: "spot id is required"}
	ErrMissingReason          = &Error{Code: CodeMissingReason, Message: "reason is required"}
	ErrInvalidReason          = &Error{Code: CodeInvalidReason, Message: "unknown reason"}
	ErrMissingAlertID         = &Error{Code: CodeMissingAlertID, Message: "alert id is required"}
	ErrMissingProposalID      = &Error{Code: CodeMissingProposalID, Message: "proposal id is required"}
	ErrMissingActorID         = &Error{Code: CodeMissingActorID, Message: "actor id is required"}
	ErrInvalidVote            = &Error{Code: CodeInvalidVote, Message: "vote must be approve or reject"}
	ErrDuplicateReport        = &Error{Code: CodeDuplicateReport, Message: "hazard already reported"}
	ErrAlreadyConfirmed       = &Error{Code: CodeAlreadyConfirmed, Message: "alert already confirmed by actor"}
	ErrCannotConfirmOwnReport = &Error{Code: CodeCannotConfirmOwnReport, Message: "cannot confirm own report"}
	ErrAlertClosed            = &Error{Code: CodeAlertClosed, Message: "alert is closed"}
	ErrAlreadyProposed        = &Error{Code: CodeAlreadyProposed, Message: "deletion already proposed"}
	ErrProposalClosed         = &Error{Code: CodeProposalClosed, Message: "proposal is closed"}
	ErrInvalidTransition      = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrAlertNotFound          = &Error{Code: CodeAlertNotFound, Message: "alert not found"}
	ErrProposalNotFound       = &Error{Code: CodeProposalNotFound, Message: "proposal not found"}
	ErrSpotNotFound           = &Error{Code: CodeSpotNotFound, Message: "spot not found"}
)

// AsError extracts the business error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
