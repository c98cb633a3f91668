// Package lightning defines the payment backend the mint uses to receive and
// send funds. Quotes reference backend payments by checking id; the ledger
// never talks to a node directly.
package lightning

import "context"

// PaymentResult classifies the outcome of a payment attempt or status probe.
type PaymentResult int

const (
	ResultFailed PaymentResult = iota
	ResultSettled
	ResultPending
	ResultUnknown
)

func (r PaymentResult) String() string {
	switch r {
	case ResultFailed:
		return "failed"
	case ResultSettled:
		return "settled"
	case ResultPending:
		return "pending"
	default:
		return "unknown"
	}
}

type StatusResponse struct {
	BalanceMsat  uint64
	ErrorMessage string
}

type InvoiceResponse struct {
	Ok             bool
	CheckingID     string
	PaymentRequest string
	ErrorMessage   string
}

type PaymentResponse struct {
	Result       PaymentResult
	CheckingID   string
	FeeMsat      uint64
	Preimage     string
	ErrorMessage string
}

func (pr *PaymentResponse) Settled() bool {
	return pr.Result == ResultSettled
}

type PaymentStatus struct {
	Result   PaymentResult
	FeeMsat  uint64
	Preimage string
}

func (ps *PaymentStatus) Settled() bool {
	return ps.Result == ResultSettled
}

type PaymentQuoteResponse struct {
	CheckingID string
	AmountSat  uint64
	FeeSat     uint64
}

// Backend is the interface every payment backend implements. CheckingID is
// the backend's handle for a payment (the payment hash for bolt11 backends)
// and must stay stable between the quote and later status probes.
type Backend interface {
	Status(ctx context.Context) (StatusResponse, error)
	CreateInvoice(ctx context.Context, amountSat uint64, memo string) (InvoiceResponse, error)
	PayInvoice(ctx context.Context, request string, feeLimitMsat uint64) (PaymentResponse, error)
	InvoiceStatus(ctx context.Context, checkingID string) (PaymentStatus, error)
	PaymentStatus(ctx context.Context, checkingID string) (PaymentStatus, error)
	PaymentQuote(ctx context.Context, request string) (PaymentQuoteResponse, error)

	// PaidInvoicesStream emits checking ids of invoices as they settle.
	PaidInvoicesStream() <-chan string
}

const (
	feePercent        = 1.0
	minFeeReserveMsat = 2000
)

// FeeReserveMsat returns the fee budget reserved for paying an invoice of the
// given amount: one percent, floored at 2000 msat.
func FeeReserveMsat(amountMsat uint64) uint64 {
	reserve := uint64(float64(amountMsat) * feePercent / 100.0)
	if reserve < minFeeReserveMsat {
		return minFeeReserveMsat
	}
	return reserve
}

// MsatToSatUp converts msat to sat, rounding up so fee estimates never
// understate.
func MsatToSatUp(msat uint64) uint64 {
	return (msat + 999) / 1000
}
