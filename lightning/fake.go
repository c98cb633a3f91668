package lightning

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/veilmint/veilmint/exception"
	"github.com/veilmint/veilmint/jsonx"
	"github.com/veilmint/veilmint/logx"
	"golang.org/x/crypto/pbkdf2"
)

const (
	fakeRequestPrefix = "lnfake1"
	fakeWalletSecret  = "FAKEWALLET SECRET"
)

// fakeInvoice is the decoded form of a lnfake1 payment request. The signature
// binds the payload to the wallet key so a tampered or hand-crafted request
// is rejected; requests from other instances fail later on the unknown
// payment hash.
type fakeInvoice struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  uint64 `json:"amount_msat"`
	Date        int64  `json:"date"`
	Memo        string `json:"memo,omitempty"`
	Signature   string `json:"signature"`
}

// FakeBackend settles payments against itself: only invoices it issued can be
// paid, and those settle instantly with zero fee. Used for development and
// tests where no node is available.
type FakeBackend struct {
	mu              sync.Mutex
	privkey         []byte
	paymentSecrets  map[string]string
	paidInvoices    map[string]struct{}
	paidStream      chan string
	autoSettleAfter time.Duration
}

// NewFakeBackend returns a fake backend. When autoSettleAfter is non-zero,
// every created invoice settles by itself after that delay, which lets mint
// flows run end to end without a payer.
func NewFakeBackend(autoSettleAfter time.Duration) *FakeBackend {
	return &FakeBackend{
		privkey:         pbkdf2.Key([]byte(fakeWalletSecret), []byte("FakeWallet"), 2048, 32, sha256.New),
		paymentSecrets:  make(map[string]string),
		paidInvoices:    make(map[string]struct{}),
		paidStream:      make(chan string, 64),
		autoSettleAfter: autoSettleAfter,
	}
}

func (fb *FakeBackend) Status(ctx context.Context) (StatusResponse, error) {
	return StatusResponse{BalanceMsat: 1337 * 1000}, nil
}

func (fb *FakeBackend) CreateInvoice(ctx context.Context, amountSat uint64, memo string) (InvoiceResponse, error) {
	if amountSat == 0 {
		return InvoiceResponse{ErrorMessage: "amount must be positive"}, fmt.Errorf("amount must be positive")
	}

	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return InvoiceResponse{ErrorMessage: err.Error()}, fmt.Errorf("failed to generate payment secret: %w", err)
	}
	secret := hex.EncodeToString(buf[:])
	sum := sha256.Sum256([]byte(secret))
	paymentHash := hex.EncodeToString(sum[:])

	invoice := fakeInvoice{
		PaymentHash: paymentHash,
		AmountMsat:  amountSat * 1000,
		Date:        time.Now().Unix(),
		Memo:        memo,
	}
	invoice.Signature = fb.sign(&invoice)

	payload, err := jsonx.Marshal(&invoice)
	if err != nil {
		return InvoiceResponse{ErrorMessage: err.Error()}, fmt.Errorf("failed to encode invoice: %w", err)
	}
	request := fakeRequestPrefix + base58.Encode(payload)

	fb.mu.Lock()
	fb.paymentSecrets[paymentHash] = secret
	fb.mu.Unlock()

	if fb.autoSettleAfter > 0 {
		delay := fb.autoSettleAfter
		exception.SafeGo("fake-ln-settle", func() {
			time.Sleep(delay)
			if err := fb.Settle(paymentHash); err != nil {
				logx.Warn("LIGHTNING", fmt.Sprintf("Auto settle of %s failed: %v", paymentHash, err))
			}
		})
	}

	return InvoiceResponse{
		Ok:             true,
		CheckingID:     paymentHash,
		PaymentRequest: request,
	}, nil
}

func (fb *FakeBackend) PayInvoice(ctx context.Context, request string, feeLimitMsat uint64) (PaymentResponse, error) {
	invoice, err := fb.decode(request)
	if err != nil {
		return PaymentResponse{Result: ResultFailed, ErrorMessage: err.Error()}, nil
	}

	fb.mu.Lock()
	secret, known := fb.paymentSecrets[invoice.PaymentHash]
	if known {
		fb.paidInvoices[invoice.PaymentHash] = struct{}{}
	}
	fb.mu.Unlock()

	if !known {
		return PaymentResponse{
			Result:       ResultFailed,
			ErrorMessage: "only invoices issued by this backend can be paid",
		}, nil
	}

	fb.notifyPaid(invoice.PaymentHash)
	return PaymentResponse{
		Result:     ResultSettled,
		CheckingID: invoice.PaymentHash,
		FeeMsat:    0,
		Preimage:   secret,
	}, nil
}

func (fb *FakeBackend) InvoiceStatus(ctx context.Context, checkingID string) (PaymentStatus, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if _, paid := fb.paidInvoices[checkingID]; paid {
		return PaymentStatus{Result: ResultSettled, Preimage: fb.paymentSecrets[checkingID]}, nil
	}
	if _, known := fb.paymentSecrets[checkingID]; known {
		return PaymentStatus{Result: ResultPending}, nil
	}
	return PaymentStatus{Result: ResultUnknown}, nil
}

func (fb *FakeBackend) PaymentStatus(ctx context.Context, checkingID string) (PaymentStatus, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if _, paid := fb.paidInvoices[checkingID]; paid {
		return PaymentStatus{Result: ResultSettled, Preimage: fb.paymentSecrets[checkingID]}, nil
	}
	return PaymentStatus{Result: ResultUnknown}, nil
}

func (fb *FakeBackend) PaymentQuote(ctx context.Context, request string) (PaymentQuoteResponse, error) {
	invoice, err := fb.decode(request)
	if err != nil {
		return PaymentQuoteResponse{}, err
	}
	if invoice.AmountMsat == 0 {
		return PaymentQuoteResponse{}, fmt.Errorf("invoice has no amount")
	}

	return PaymentQuoteResponse{
		CheckingID: invoice.PaymentHash,
		AmountSat:  MsatToSatUp(invoice.AmountMsat),
		FeeSat:     MsatToSatUp(FeeReserveMsat(invoice.AmountMsat)),
	}, nil
}

func (fb *FakeBackend) PaidInvoicesStream() <-chan string {
	return fb.paidStream
}

// Settle marks an invoice as paid from outside, standing in for an incoming
// payment hitting a real node.
func (fb *FakeBackend) Settle(checkingID string) error {
	fb.mu.Lock()
	_, known := fb.paymentSecrets[checkingID]
	if known {
		fb.paidInvoices[checkingID] = struct{}{}
	}
	fb.mu.Unlock()

	if !known {
		return fmt.Errorf("unknown invoice: %s", checkingID)
	}
	fb.notifyPaid(checkingID)
	return nil
}

func (fb *FakeBackend) notifyPaid(checkingID string) {
	select {
	case fb.paidStream <- checkingID:
	default:
		logx.Warn("LIGHTNING", "Paid invoice stream full, dropping notification for "+checkingID)
	}
}

func (fb *FakeBackend) sign(invoice *fakeInvoice) string {
	mac := hmac.New(sha256.New, fb.privkey)
	fmt.Fprintf(mac, "%s:%d:%d", invoice.PaymentHash, invoice.AmountMsat, invoice.Date)
	return hex.EncodeToString(mac.Sum(nil))
}

func (fb *FakeBackend) decode(request string) (*fakeInvoice, error) {
	if !strings.HasPrefix(request, fakeRequestPrefix) {
		return nil, fmt.Errorf("not a %s payment request", fakeRequestPrefix)
	}

	payload, err := base58.Decode(strings.TrimPrefix(request, fakeRequestPrefix))
	if err != nil {
		return nil, fmt.Errorf("malformed payment request: %w", err)
	}

	var invoice fakeInvoice
	if err := jsonx.Unmarshal(payload, &invoice); err != nil {
		return nil, fmt.Errorf("malformed payment request: %w", err)
	}

	expected := fb.sign(&invoice)
	if !hmac.Equal([]byte(expected), []byte(invoice.Signature)) {
		return nil, fmt.Errorf("payment request signature mismatch")
	}
	return &invoice, nil
}
