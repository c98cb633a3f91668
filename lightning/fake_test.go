package lightning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBackendInvoiceLifecycle(t *testing.T) {
	fb := NewFakeBackend(0)
	ctx := context.Background()

	inv, err := fb.CreateInvoice(ctx, 100, "test invoice")
	require.NoError(t, err)
	require.True(t, inv.Ok)
	assert.Len(t, inv.CheckingID, 64)
	assert.Contains(t, inv.PaymentRequest, "lnfake1")

	status, err := fb.InvoiceStatus(ctx, inv.CheckingID)
	require.NoError(t, err)
	assert.Equal(t, ResultPending, status.Result)

	require.NoError(t, fb.Settle(inv.CheckingID))

	status, err = fb.InvoiceStatus(ctx, inv.CheckingID)
	require.NoError(t, err)
	assert.Equal(t, ResultSettled, status.Result)
	assert.NotEmpty(t, status.Preimage)

	select {
	case paid := <-fb.PaidInvoicesStream():
		assert.Equal(t, inv.CheckingID, paid)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for paid invoice notification")
	}
}

func TestFakeBackendPayOwnInvoice(t *testing.T) {
	fb := NewFakeBackend(0)
	ctx := context.Background()

	inv, err := fb.CreateInvoice(ctx, 250, "")
	require.NoError(t, err)

	payment, err := fb.PayInvoice(ctx, inv.PaymentRequest, 10_000)
	require.NoError(t, err)
	assert.Equal(t, ResultSettled, payment.Result)
	assert.Equal(t, inv.CheckingID, payment.CheckingID)
	assert.Zero(t, payment.FeeMsat)
	assert.NotEmpty(t, payment.Preimage)

	status, err := fb.PaymentStatus(ctx, inv.CheckingID)
	require.NoError(t, err)
	assert.Equal(t, ResultSettled, status.Result)
}

func TestFakeBackendRejectsForeignInvoice(t *testing.T) {
	ctx := context.Background()

	// A request minted by a different backend instance carries a signature
	// under a key this instance recognizes but a payment hash it never
	// issued.
	other := NewFakeBackend(0)
	inv, err := other.CreateInvoice(ctx, 50, "")
	require.NoError(t, err)

	fb := NewFakeBackend(0)
	payment, err := fb.PayInvoice(ctx, inv.PaymentRequest, 10_000)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, payment.Result)
	assert.NotEmpty(t, payment.ErrorMessage)

	garbage, err := fb.PayInvoice(ctx, "lnbc1notfake", 10_000)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, garbage.Result)
}

func TestFakeBackendPaymentQuote(t *testing.T) {
	fb := NewFakeBackend(0)
	ctx := context.Background()

	inv, err := fb.CreateInvoice(ctx, 100, "")
	require.NoError(t, err)

	quote, err := fb.PaymentQuote(ctx, inv.PaymentRequest)
	require.NoError(t, err)
	assert.Equal(t, inv.CheckingID, quote.CheckingID)
	assert.Equal(t, uint64(100), quote.AmountSat)
	// 1% of 100_000 msat is below the 2000 msat floor.
	assert.Equal(t, uint64(2), quote.FeeSat)

	_, err = fb.PaymentQuote(ctx, "garbage")
	assert.Error(t, err)
}

func TestFakeBackendAutoSettle(t *testing.T) {
	fb := NewFakeBackend(10 * time.Millisecond)
	ctx := context.Background()

	inv, err := fb.CreateInvoice(ctx, 42, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := fb.InvoiceStatus(ctx, inv.CheckingID)
		return err == nil && status.Result == ResultSettled
	}, time.Second, 5*time.Millisecond)
}

func TestFakeBackendStatus(t *testing.T) {
	fb := NewFakeBackend(0)

	status, err := fb.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1337_000), status.BalanceMsat)
	assert.Empty(t, status.ErrorMessage)
}

func TestFeeReserveMsat(t *testing.T) {
	// Floor applies below 200k msat.
	assert.Equal(t, uint64(2000), FeeReserveMsat(1000))
	assert.Equal(t, uint64(2000), FeeReserveMsat(200_000))
	// One percent beyond the floor.
	assert.Equal(t, uint64(10_000), FeeReserveMsat(1_000_000))
}

func TestMsatToSatUp(t *testing.T) {
	assert.Equal(t, uint64(0), MsatToSatUp(0))
	assert.Equal(t, uint64(1), MsatToSatUp(1))
	assert.Equal(t, uint64(1), MsatToSatUp(1000))
	assert.Equal(t, uint64(2), MsatToSatUp(1001))
}
