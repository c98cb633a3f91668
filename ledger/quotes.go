package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/lightning"
	"github.com/veilmint/veilmint/logx"
	"github.com/veilmint/veilmint/monitoring"
	"github.com/veilmint/veilmint/token"
)

// RequestMintQuote asks the backend for an invoice over the given amount and
// stores an unpaid quote referencing it. The quote can be minted against once
// the invoice settles.
func (l *Ledger) RequestMintQuote(ctx context.Context, amount uint64, unit string) (*token.MintQuote, error) {
	if unit == "" {
		unit = l.unit
	}
	if unit != l.unit {
		monitoring.RecordRejectedRequest(monitoring.RejectedUnknown)
		return nil, errors.ErrUnsupportedUnit
	}
	if amount == 0 {
		return nil, errors.ErrInvalidAmount
	}

	invoice, err := l.backend.CreateInvoice(ctx, amount, "mint deposit")
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "backend failed to create invoice: %v", err)
	}
	if !invoice.Ok {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "backend refused invoice: %s", invoice.ErrorMessage)
	}

	id, err := token.NewQuoteID()
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "%v", err)
	}

	now := time.Now()
	quote := &token.MintQuote{
		ID:         id,
		Request:    invoice.PaymentRequest,
		CheckingID: invoice.CheckingID,
		Amount:     amount,
		Unit:       unit,
		State:      token.QuoteStateUnpaid,
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(l.quoteExpiry).Unix(),
	}
	if err := l.quoteStore.StoreMintQuote(quote); err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to store mint quote: %v", err)
	}

	monitoring.IncreaseMintQuoteCount()
	logx.Info("LEDGER", fmt.Sprintf("Mint quote %s created for %d %s", quote.ID, amount, unit))
	return quote, nil
}

// GetMintQuoteState returns the quote, probing the backend first when it is
// still unpaid so wallets see a settled invoice without waiting for the
// watcher to notice it.
func (l *Ledger) GetMintQuoteState(ctx context.Context, quoteID string) (*token.MintQuote, error) {
	quote, err := l.quoteStore.GetMintQuote(quoteID)
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to load mint quote: %v", err)
	}
	if quote == nil {
		return nil, errors.ErrQuoteNotFound
	}

	if quote.State == token.QuoteStateUnpaid {
		status, err := l.backend.InvoiceStatus(ctx, quote.CheckingID)
		if err != nil {
			logx.Warn("LEDGER", fmt.Sprintf("Invoice status probe for quote %s failed: %v", quote.ID, err))
			return quote, nil
		}
		if status.Settled() {
			return l.markMintQuotePaid(quote.ID)
		}
	}
	return quote, nil
}

// markMintQuotePaid transitions a quote to paid exactly once. Repeated calls
// for an already paid or issued quote are no-ops, so the watcher, the status
// probe and internal melt settlement can all report the same payment safely.
func (l *Ledger) markMintQuotePaid(quoteID string) (*token.MintQuote, error) {
	l.quoteMu.Lock()
	defer l.quoteMu.Unlock()

	quote, err := l.quoteStore.GetMintQuote(quoteID)
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to load mint quote: %v", err)
	}
	if quote == nil {
		return nil, errors.ErrQuoteNotFound
	}
	if quote.State != token.QuoteStateUnpaid {
		return quote, nil
	}

	quote.State = token.QuoteStatePaid
	if err := l.quoteStore.StoreMintQuote(quote); err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to store mint quote: %v", err)
	}

	logx.Info("LEDGER", fmt.Sprintf("Mint quote %s paid (%d %s)", quote.ID, quote.Amount, quote.Unit))
	l.eventRouter.PublishMintQuotePaid(quote.ID, quote.Amount)
	return quote, nil
}

// MintTokens signs outputs against a paid quote. Issuance is all-or-nothing
// per quote: the paid to issued transition happens under the quote lock, so
// concurrent requests for the same quote yield exactly one signature set.
func (l *Ledger) MintTokens(ctx context.Context, quoteID string, outputs []token.BlindedMessage) ([]token.BlindedSignature, error) {
	quote, err := l.quoteStore.GetMintQuote(quoteID)
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to load mint quote: %v", err)
	}
	if quote == nil {
		return nil, errors.ErrQuoteNotFound
	}

	// Late payments still count: probe the backend before giving up on an
	// unpaid quote. No lock is held here.
	if quote.State == token.QuoteStateUnpaid {
		status, err := l.backend.InvoiceStatus(ctx, quote.CheckingID)
		if err == nil && status.Settled() {
			if quote, err = l.markMintQuotePaid(quote.ID); err != nil {
				return nil, err
			}
		}
	}
	if quote.State == token.QuoteStateUnpaid && quote.Expired(time.Now().Unix()) {
		monitoring.RecordRejectedRequest(monitoring.RejectedQuoteState)
		return nil, errors.ErrQuoteExpired
	}

	if err := l.verifyOutputs(outputs, false); err != nil {
		return nil, err
	}
	if token.SumMessages(outputs) != quote.Amount {
		monitoring.RecordRejectedRequest(monitoring.RejectedAmountMismatch)
		return nil, errors.ErrAmountMismatch
	}

	l.quoteMu.Lock()
	defer l.quoteMu.Unlock()

	quote, err = l.quoteStore.GetMintQuote(quoteID)
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to load mint quote: %v", err)
	}
	if quote == nil {
		return nil, errors.ErrQuoteNotFound
	}
	switch quote.State {
	case token.QuoteStateIssued:
		monitoring.RecordRejectedRequest(monitoring.RejectedQuoteState)
		return nil, errors.ErrQuoteAlreadyIssued
	case token.QuoteStatePaid:
	default:
		monitoring.RecordRejectedRequest(monitoring.RejectedQuoteState)
		return nil, errors.ErrQuoteNotPaid
	}

	signatures, err := l.signOutputs(outputs)
	if err != nil {
		return nil, err
	}

	// If this write fails the promises are already stored, so a retry runs
	// into the already-signed check; the wallet recovers them via Restore.
	quote.State = token.QuoteStateIssued
	if err := l.quoteStore.StoreMintQuote(quote); err != nil {
		logx.Error("LEDGER", "Failed to mark quote issued after signing:", err.Error())
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to store mint quote: %v", err)
	}

	logx.Info("LEDGER", fmt.Sprintf("Minted %d tokens (%d %s) for quote %s", len(signatures), quote.Amount, quote.Unit, quote.ID))
	l.eventRouter.PublishTokensIssued(quote.ID, quote.Amount)
	return signatures, nil
}

// RequestMeltQuote quotes an outgoing payment: the backend prices the request
// and the mint adds a fee reserve the wallet has to cover in proofs.
func (l *Ledger) RequestMeltQuote(ctx context.Context, request string, unit string) (*token.MeltQuote, error) {
	if unit == "" {
		unit = l.unit
	}
	if unit != l.unit {
		monitoring.RecordRejectedRequest(monitoring.RejectedUnknown)
		return nil, errors.ErrUnsupportedUnit
	}

	paymentQuote, err := l.backend.PaymentQuote(ctx, request)
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodePaymentFailed, "backend rejected payment request: %v", err)
	}
	if paymentQuote.AmountSat == 0 {
		return nil, errors.ErrInvalidAmount
	}

	id, err := token.NewQuoteID()
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "%v", err)
	}

	now := time.Now()
	quote := &token.MeltQuote{
		ID:         id,
		Request:    request,
		CheckingID: paymentQuote.CheckingID,
		Amount:     paymentQuote.AmountSat,
		FeeReserve: paymentQuote.FeeSat,
		Unit:       unit,
		State:      token.QuoteStateUnpaid,
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(l.quoteExpiry).Unix(),
	}
	if err := l.quoteStore.StoreMeltQuote(quote); err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to store melt quote: %v", err)
	}

	logx.Info("LEDGER", fmt.Sprintf("Melt quote %s created for %d %s (fee reserve %d)", quote.ID, quote.Amount, unit, quote.FeeReserve))
	return quote, nil
}

// GetMeltQuoteState returns the quote, probing the backend when a payment is
// still in flight. Settled and failed in-flight payments are resolved the
// same way the startup recovery resolves them.
func (l *Ledger) GetMeltQuoteState(ctx context.Context, quoteID string) (*token.MeltQuote, error) {
	quote, err := l.quoteStore.GetMeltQuote(quoteID)
	if err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to load melt quote: %v", err)
	}
	if quote == nil {
		return nil, errors.ErrQuoteNotFound
	}

	if quote.State == token.QuoteStatePending {
		status, err := l.backend.PaymentStatus(ctx, quote.CheckingID)
		if err != nil {
			logx.Warn("LEDGER", fmt.Sprintf("Payment status probe for quote %s failed: %v", quote.ID, err))
			return quote, nil
		}
		if resolved := l.resolvePendingMelt(quote, &status); resolved != nil {
			return resolved, nil
		}
	}
	return quote, nil
}

// Melt invalidates inputs and pays the quoted request. Inputs are reserved
// before the payment starts and either settle into the spent set or are
// released, so no lock is held while the backend pays. When the request is an
// invoice of this mint's own, the payment settles internally without
// touching the backend.
func (l *Ledger) Melt(ctx context.Context, quoteID string, inputs []token.Proof, outputs []token.BlindedMessage) (*token.MeltQuote, []token.BlindedSignature, error) {
	quote, err := l.quoteStore.GetMeltQuote(quoteID)
	if err != nil {
		return nil, nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to load melt quote: %v", err)
	}
	if quote == nil {
		return nil, nil, errors.ErrQuoteNotFound
	}
	if quote.State == token.QuoteStateUnpaid && quote.Expired(time.Now().Unix()) {
		monitoring.RecordRejectedRequest(monitoring.RejectedQuoteState)
		return nil, nil, errors.ErrQuoteExpired
	}

	if err := l.verifyInputs(inputs); err != nil {
		return nil, nil, err
	}
	provided := token.SumProofs(inputs)
	required := quote.Amount + quote.FeeReserve + l.feesForProofs(inputs)
	if provided < required {
		monitoring.RecordRejectedRequest(monitoring.RejectedAmountMismatch)
		return nil, nil, errors.ErrInsufficientFee
	}
	// Change outputs are blanks: their amounts are assigned at settlement,
	// so only the structural checks apply.
	if len(outputs) > 0 {
		if err := l.verifyOutputs(outputs, true); err != nil {
			return nil, nil, err
		}
	}

	if err := l.lockMeltQuote(quote, inputs); err != nil {
		return nil, nil, err
	}
	if err := l.setPendingProofs(inputs); err != nil {
		l.revertMeltQuote(quote)
		return nil, nil, err
	}

	feePaid, preimage, internal, err := l.settlePayment(ctx, quote)
	if err != nil {
		if stderrors.Is(err, errors.ErrQuotePending) {
			// Payment still in flight: the quote stays pending and the
			// inputs stay reserved until the status probe or the startup
			// recovery resolves it.
			return nil, nil, err
		}
		if unsetErr := l.unsetPendingProofs(inputs); unsetErr != nil {
			logx.Error("LEDGER", "Failed to release inputs after failed payment:", unsetErr.Error())
		}
		l.revertMeltQuote(quote)
		monitoring.RecordMelt("failed")
		return nil, nil, err
	}

	if err := l.settlePendingProofs(inputs, "melt"); err != nil {
		// The payment went out; the in-memory marks keep the proofs
		// unspendable even though storage is behind.
		logx.Error("LEDGER", "Failed to settle inputs after payment:", err.Error())
	}

	quote.State = token.QuoteStatePaid
	quote.FeePaid = feePaid
	quote.Preimage = preimage
	quote.InputSecrets = nil
	if err := l.quoteStore.StoreMeltQuote(quote); err != nil {
		logx.Error("LEDGER", "Failed to store settled melt quote:", err.Error())
	}

	var change []token.BlindedSignature
	if len(outputs) > 0 {
		change, err = l.generateChangePromises(provided, quote.Amount, feePaid, outputs)
		if err != nil {
			// The melt settled; losing change is recoverable by the
			// wallet, failing the call here is not.
			logx.Error("LEDGER", "Failed to issue change for melt:", err.Error())
			change = nil
		}
	}

	if internal {
		monitoring.RecordMelt("internal")
	} else {
		monitoring.RecordMelt("external")
	}
	logx.Info("LEDGER", fmt.Sprintf("Melt quote %s settled (%d %s, fee %d, internal=%t)", quote.ID, quote.Amount, quote.Unit, feePaid, internal))
	l.eventRouter.PublishMeltSettled(quote.ID, quote.Amount, feePaid, internal)
	return quote, change, nil
}

// lockMeltQuote transitions the quote to pending and records which secrets it
// reserves. Exactly one concurrent Melt wins this transition.
func (l *Ledger) lockMeltQuote(quote *token.MeltQuote, inputs []token.Proof) error {
	l.quoteMu.Lock()
	defer l.quoteMu.Unlock()

	current, err := l.quoteStore.GetMeltQuote(quote.ID)
	if err != nil {
		return errors.NewErrorf(errors.ErrCodeInternal, "failed to load melt quote: %v", err)
	}
	if current == nil {
		return errors.ErrQuoteNotFound
	}
	switch current.State {
	case token.QuoteStatePending:
		monitoring.RecordRejectedRequest(monitoring.RejectedQuoteState)
		return errors.ErrQuotePending
	case token.QuoteStatePaid:
		monitoring.RecordRejectedRequest(monitoring.RejectedQuoteState)
		return errors.ErrQuoteAlreadyPaid
	}

	quote.State = token.QuoteStatePending
	quote.InputSecrets = secretsOf(inputs)
	if err := l.quoteStore.StoreMeltQuote(quote); err != nil {
		quote.State = current.State
		quote.InputSecrets = nil
		return errors.NewErrorf(errors.ErrCodeInternal, "failed to store melt quote: %v", err)
	}
	return nil
}

func (l *Ledger) revertMeltQuote(quote *token.MeltQuote) {
	l.quoteMu.Lock()
	defer l.quoteMu.Unlock()

	quote.State = token.QuoteStateUnpaid
	quote.InputSecrets = nil
	if err := l.quoteStore.StoreMeltQuote(quote); err != nil {
		logx.Error("LEDGER", "Failed to revert melt quote:", err.Error())
	}
}

// settlePayment pays the quote, internally when its checking id belongs to one
// of this mint's own unpaid mint quotes, through the backend otherwise. No
// ledger lock is held in here.
func (l *Ledger) settlePayment(ctx context.Context, quote *token.MeltQuote) (feePaid uint64, preimage string, internal bool, err error) {
	mintQuote, err := l.quoteStore.GetMintQuoteByChecking(quote.CheckingID)
	if err != nil {
		return 0, "", false, errors.NewErrorf(errors.ErrCodeInternal, "failed to check for internal settlement: %v", err)
	}
	if mintQuote != nil {
		if mintQuote.Request != quote.Request {
			return 0, "", false, errors.NewErrorf(errors.ErrCodeInternal, "internal settlement request mismatch for checking id %s", quote.CheckingID)
		}
		if mintQuote.Unit != quote.Unit {
			return 0, "", false, errors.ErrUnsupportedUnit
		}
		if mintQuote.Amount != quote.Amount {
			return 0, "", false, errors.ErrAmountMismatch
		}
		if mintQuote.State != token.QuoteStateUnpaid {
			return 0, "", false, errors.NewErrorf(errors.ErrCodePaymentFailed, "mint quote %s is already paid", mintQuote.ID)
		}
		if _, err := l.markMintQuotePaid(mintQuote.ID); err != nil {
			return 0, "", false, err
		}
		logx.Info("LEDGER", fmt.Sprintf("Melt quote %s settled internally against mint quote %s", quote.ID, mintQuote.ID))
		return 0, "", true, nil
	}

	response, err := l.backend.PayInvoice(ctx, quote.Request, quote.FeeReserve*1000)
	if err != nil {
		return 0, "", false, errors.NewErrorf(errors.ErrCodePaymentFailed, "backend payment failed: %v", err)
	}
	switch response.Result {
	case lightning.ResultSettled:
		return lightning.MsatToSatUp(response.FeeMsat), response.Preimage, false, nil
	case lightning.ResultFailed:
		if response.ErrorMessage != "" {
			return 0, "", false, errors.NewErrorf(errors.ErrCodePaymentFailed, "backend payment failed: %s", response.ErrorMessage)
		}
		return 0, "", false, errors.ErrPaymentFailed
	default:
		// In flight: the inputs stay reserved, the quote stays pending and
		// the wallet polls the quote state until the payment resolves.
		return 0, "", false, errors.ErrQuotePending
	}
}

// RecoverPendingMelts resolves melt quotes whose payment was in flight when
// the process died: settled payments spend their reserved inputs, failed ones
// release them. Payments still in flight stay locked. Called once at startup.
func (l *Ledger) RecoverPendingMelts(ctx context.Context) error {
	pending, err := l.quoteStore.ListMeltQuotes(token.QuoteStatePending)
	if err != nil {
		return fmt.Errorf("failed to list pending melt quotes: %w", err)
	}

	for _, quote := range pending {
		status, err := l.backend.PaymentStatus(ctx, quote.CheckingID)
		if err != nil {
			logx.Warn("LEDGER", fmt.Sprintf("Cannot resolve pending melt quote %s: %v", quote.ID, err))
			continue
		}
		if resolved := l.resolvePendingMelt(quote, &status); resolved == nil {
			logx.Info("LEDGER", fmt.Sprintf("Melt quote %s still in flight, leaving inputs reserved", quote.ID))
		}
	}
	return nil
}

// resolvePendingMelt applies a backend payment status to a pending quote.
// Returns the updated quote, or nil when the payment is still undecided.
func (l *Ledger) resolvePendingMelt(quote *token.MeltQuote, status *lightning.PaymentStatus) *token.MeltQuote {
	proofs, err := l.proofStore.GetPendingBatch(quote.InputSecrets)
	if err != nil {
		logx.Error("LEDGER", "Failed to load reserved inputs for pending melt:", err.Error())
		return nil
	}

	switch status.Result {
	case lightning.ResultSettled:
		if len(proofs) > 0 {
			if err := l.settlePendingProofs(proofs, "melt"); err != nil {
				logx.Error("LEDGER", "Failed to settle recovered inputs:", err.Error())
			}
		} else if len(quote.InputSecrets) > 0 {
			logx.Error("LEDGER", fmt.Sprintf("Melt quote %s settled but its reserved inputs are gone", quote.ID))
		}
		quote.State = token.QuoteStatePaid
		quote.FeePaid = lightning.MsatToSatUp(status.FeeMsat)
		quote.Preimage = status.Preimage
		quote.InputSecrets = nil
		if err := l.quoteStore.StoreMeltQuote(quote); err != nil {
			logx.Error("LEDGER", "Failed to store recovered melt quote:", err.Error())
		}
		monitoring.RecordMelt("external")
		logx.Info("LEDGER", fmt.Sprintf("Melt quote %s resolved as settled (fee %d)", quote.ID, quote.FeePaid))
		l.eventRouter.PublishMeltSettled(quote.ID, quote.Amount, quote.FeePaid, false)
		return quote

	case lightning.ResultFailed:
		if len(proofs) > 0 {
			if err := l.unsetPendingProofs(proofs); err != nil {
				logx.Error("LEDGER", "Failed to release recovered inputs:", err.Error())
			}
		}
		l.revertMeltQuote(quote)
		monitoring.RecordMelt("failed")
		logx.Info("LEDGER", fmt.Sprintf("Melt quote %s resolved as failed, inputs released", quote.ID))
		return quote

	default:
		return nil
	}
}
