//nolint:lll
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/transition"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400 or 404 (or even 204), whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill in the gap, that code was used in the past for some error
// and shouldn't be reused.
var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedAmount      = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed amount")}
	ErrMalformedAddress     = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrInsufficientFunds    = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("insufficient funds")}
	ErrInvalidAmount        = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid amount")}
	ErrUnknownRecipient     = Error{Code: 40012, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("unknown recipient")}
	ErrNothingToJoin        = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("nothing to join")}
	ErrTooManyJoins         = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("too many joins")}
	ErrMalformedMappingKey  = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed mapping key")}
	ErrTokenNotConfigured   = Error{Code: 40016, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("token contract not configured")}
	ErrCommitmentNotFound   = Error{Code: 40017, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("commitment not found")}
	ErrCommitmentDuplicated = Error{Code: 40018, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("commitment already known")}
	ErrAlreadySpent         = Error{Code: 40019, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("commitment already spent")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrProofService               = Error{Code: 50003, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("proof generation failed")}
	ErrChainRejected              = Error{Code: 50004, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("transaction rejected")}
	ErrRequestCancelled           = Error{Code: 50005, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("request cancelled")}
	ErrTokenCallFailed            = Error{Code: 50006, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("token call failed")}
)

// transitionError maps an error returned by the transition builder to the
// matching API error.
func transitionError(err error) Error {
	var e Error
	switch {
	case errors.Is(err, transition.ErrInsufficientFunds):
		e = ErrInsufficientFunds
	case errors.Is(err, transition.ErrInvalidAmount):
		e = ErrInvalidAmount
	case errors.Is(err, transition.ErrUnknownRecipient):
		e = ErrUnknownRecipient
	case errors.Is(err, transition.ErrNothingToJoin):
		e = ErrNothingToJoin
	case errors.Is(err, transition.ErrTooManyJoins):
		e = ErrTooManyJoins
	case errors.Is(err, transition.ErrProofService):
		e = ErrProofService
	case errors.Is(err, transition.ErrChainRejected):
		e = ErrChainRejected
	case errors.Is(err, transition.ErrAlreadySpent):
		e = ErrAlreadySpent
	case errors.Is(err, storage.ErrDuplicateCommitment):
		e = ErrCommitmentDuplicated
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e = ErrRequestCancelled
	default:
		e = ErrGenericInternalServerError
	}
	return Error{Err: err, Code: e.Code, HTTPstatus: e.HTTPstatus}
}
