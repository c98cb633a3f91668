package ledger

import (
	"context"
	"time"

	"github.com/veilmint/veilmint/exception"
	"github.com/veilmint/veilmint/logx"
	"github.com/veilmint/veilmint/token"
)

const invoicePollInterval = 30 * time.Second

// WatchInvoices follows the backend's paid-invoice stream and marks matching
// mint quotes paid as notifications arrive. A periodic sweep over unpaid
// quotes backstops the stream, so a notification missed while the process was
// down is picked up on the next poll. Runs until ctx is cancelled.
func (l *Ledger) WatchInvoices(ctx context.Context) {
	exception.SafeGo("invoice-watcher", func() {
		ticker := time.NewTicker(invoicePollInterval)
		defer ticker.Stop()

		stream := l.backend.PaidInvoicesStream()
		for {
			select {
			case <-ctx.Done():
				logx.Info("LEDGER", "Invoice watcher stopped")
				return
			case checkingID, ok := <-stream:
				if !ok {
					// A nil channel never fires; polling carries on alone.
					logx.Warn("LEDGER", "Paid invoice stream closed, polling only")
					stream = nil
					continue
				}
				l.handlePaidInvoice(checkingID)
			case <-ticker.C:
				l.sweepUnpaidQuotes(ctx)
			}
		}
	})
}

func (l *Ledger) handlePaidInvoice(checkingID string) {
	quote, err := l.quoteStore.GetMintQuoteByChecking(checkingID)
	if err != nil {
		logx.Error("LEDGER", "Failed to resolve paid invoice:", err.Error())
		return
	}
	if quote == nil {
		// Not one of ours, or the quote was created by another process.
		logx.Debug("LEDGER", "Paid invoice "+checkingID+" matches no mint quote")
		return
	}
	if _, err := l.markMintQuotePaid(quote.ID); err != nil {
		logx.Error("LEDGER", "Failed to mark mint quote paid:", err.Error())
	}
}

// sweepUnpaidQuotes polls the backend for every unpaid, unexpired quote.
func (l *Ledger) sweepUnpaidQuotes(ctx context.Context) {
	quotes, err := l.quoteStore.ListMintQuotes(token.QuoteStateUnpaid)
	if err != nil {
		logx.Error("LEDGER", "Failed to list unpaid mint quotes:", err.Error())
		return
	}

	now := time.Now().Unix()
	for _, quote := range quotes {
		if quote.Expired(now) {
			continue
		}
		status, err := l.backend.InvoiceStatus(ctx, quote.CheckingID)
		if err != nil {
			logx.Warn("LEDGER", "Invoice status poll failed for quote "+quote.ID+": "+err.Error())
			continue
		}
		if status.Settled() {
			if _, err := l.markMintQuotePaid(quote.ID); err != nil {
				logx.Error("LEDGER", "Failed to mark mint quote paid:", err.Error())
			}
		}
	}
}
