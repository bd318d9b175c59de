package domain

import "fmt"

// RejectionCode identifies why an order submission was refused before any
// order was created. Rejections are synchronous and fully recoverable: the
// caller may resubmit with adjusted parameters.
type RejectionCode string

const (
	RejectInvalidOrder          RejectionCode = "INVALID_ORDER"
	RejectInstrumentNotFound    RejectionCode = "INSTRUMENT_NOT_FOUND"
	RejectPortfolioNotFound     RejectionCode = "PORTFOLIO_NOT_FOUND"
	RejectUnsuitable            RejectionCode = "UNSUITABLE"
	RejectInsufficientCash      RejectionCode = "INSUFFICIENT_CASH"
	RejectConcentrationExceeded RejectionCode = "CONCENTRATION_EXCEEDED"
	RejectSellExceedsHolding    RejectionCode = "SELL_EXCEEDS_HOLDING"
)

// Rejection is the typed error returned for submissions refused at
// validation. It is distinct from an order FAILED after acceptance: a
// rejection leaves no trace in the order history.
type Rejection struct {
	Code   RejectionCode
	Reason string
}

// Error implements the error interface
func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

// NewRejection builds a Rejection with a formatted reason
func NewRejection(code RejectionCode, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}
