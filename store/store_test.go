package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilmint/veilmint/db"
	"github.com/veilmint/veilmint/token"
)

func newTestProvider(t *testing.T) db.DatabaseProvider {
	t.Helper()
	provider, err := db.NewLevelDBProvider(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func testProof(secret string, amount uint64) token.Proof {
	return token.Proof{
		Amount: amount,
		ID:     "00ad268c4d1f5826",
		Secret: secret,
		C:      "02bc9097997d81afb2cc7346b5e4345a9346bd2a506eb7958598a72f0cf85163ea",
	}
}

func TestProofStoreSpentRoundTrip(t *testing.T) {
	ps, err := NewGenericProofStore(newTestProvider(t))
	require.NoError(t, err)

	proofs := []token.Proof{
		testProof("secret-a", 2),
		testProof("secret-b", 8),
	}
	require.NoError(t, ps.MarkSpentBatch(proofs))

	got, err := ps.GetSpent("secret-b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(8), got.Amount)
	assert.Equal(t, proofs[1].C, got.C)

	missing, err := ps.GetSpent("never-seen")
	require.NoError(t, err)
	assert.Nil(t, missing)

	secrets, err := ps.LoadSpentSecrets()
	require.NoError(t, err)
	assert.Len(t, secrets, 2)
	assert.Contains(t, secrets, "secret-a")
	assert.Contains(t, secrets, "secret-b")
}

func TestProofStorePendingLifecycle(t *testing.T) {
	ps, err := NewGenericProofStore(newTestProvider(t))
	require.NoError(t, err)

	proofs := []token.Proof{testProof("inflight-1", 4), testProof("inflight-2", 4)}
	require.NoError(t, ps.SetPendingBatch(proofs))

	pending, err := ps.LoadPendingSecrets()
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, ps.UnsetPendingBatch([]string{"inflight-1", "inflight-2"}))

	pending, err = ps.LoadPendingSecrets()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Pending markers never leak into the spent set.
	spent, err := ps.LoadSpentSecrets()
	require.NoError(t, err)
	assert.Empty(t, spent)
}

func TestProofStoreNilProvider(t *testing.T) {
	_, err := NewGenericProofStore(nil)
	assert.Error(t, err)
}

func TestPromiseStoreRoundTrip(t *testing.T) {
	ps, err := NewGenericPromiseStore(newTestProvider(t))
	require.NoError(t, err)

	now := time.Now().Unix()
	promises := []Promise{
		{B: "02b1", Amount: 1, C: "02c1", KeysetID: "00ad268c4d1f5826", CreatedAt: now},
		{B: "02b2", Amount: 2, C: "02c2", E: "ee", S: "ss", KeysetID: "00ad268c4d1f5826", CreatedAt: now},
	}
	require.NoError(t, ps.StoreBatch(promises))

	got, err := ps.Get("02b2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(2), got.Amount)
	assert.Equal(t, "ee", got.E)

	missing, err := ps.Get("02ff")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPromiseStoreGetBatch(t *testing.T) {
	ps, err := NewGenericPromiseStore(newTestProvider(t))
	require.NoError(t, err)

	promises := make([]Promise, 0, 4)
	for i := 0; i < 4; i++ {
		promises = append(promises, Promise{
			B:      fmt.Sprintf("02b%d", i),
			Amount: uint64(1 << i),
			C:      fmt.Sprintf("02c%d", i),
		})
	}
	require.NoError(t, ps.StoreBatch(promises))

	result, err := ps.GetBatch([]string{"02b0", "02b3", "02unknown", ""})
	require.NoError(t, err)
	assert.Len(t, result, 2)
	require.Contains(t, result, "02b0")
	require.Contains(t, result, "02b3")
	assert.Equal(t, uint64(8), result["02b3"].Amount)
	assert.NotContains(t, result, "02unknown")
}

func TestQuoteStoreMintQuote(t *testing.T) {
	qs, err := NewGenericQuoteStore(newTestProvider(t))
	require.NoError(t, err)

	quote := &token.MintQuote{
		ID:         "quote-1",
		Request:    "lnfake1abc",
		CheckingID: "check-1",
		Amount:     64,
		Unit:       "sat",
		State:      token.QuoteStateUnpaid,
		CreatedAt:  time.Now().Unix(),
	}
	require.NoError(t, qs.StoreMintQuote(quote))

	got, err := qs.GetMintQuote("quote-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(64), got.Amount)
	assert.Equal(t, token.QuoteStateUnpaid, got.State)

	byChecking, err := qs.GetMintQuoteByChecking("check-1")
	require.NoError(t, err)
	require.NotNil(t, byChecking)
	assert.Equal(t, "quote-1", byChecking.ID)

	missing, err := qs.GetMintQuote("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missingChecking, err := qs.GetMintQuoteByChecking("nope")
	require.NoError(t, err)
	assert.Nil(t, missingChecking)
}

func TestQuoteStoreMintQuoteStateUpdate(t *testing.T) {
	qs, err := NewGenericQuoteStore(newTestProvider(t))
	require.NoError(t, err)

	for i, state := range []token.QuoteState{token.QuoteStateUnpaid, token.QuoteStateUnpaid, token.QuoteStatePaid} {
		quote := &token.MintQuote{
			ID:         fmt.Sprintf("quote-%d", i),
			CheckingID: fmt.Sprintf("check-%d", i),
			Amount:     32,
			State:      state,
		}
		require.NoError(t, qs.StoreMintQuote(quote))
	}

	unpaid, err := qs.ListMintQuotes(token.QuoteStateUnpaid)
	require.NoError(t, err)
	assert.Len(t, unpaid, 2)

	// Re-storing with a new state replaces the record in place.
	quote, err := qs.GetMintQuote("quote-0")
	require.NoError(t, err)
	quote.State = token.QuoteStateIssued
	require.NoError(t, qs.StoreMintQuote(quote))

	unpaid, err = qs.ListMintQuotes(token.QuoteStateUnpaid)
	require.NoError(t, err)
	assert.Len(t, unpaid, 1)
	assert.Equal(t, "quote-1", unpaid[0].ID)
}

func TestQuoteStoreMeltQuote(t *testing.T) {
	qs, err := NewGenericQuoteStore(newTestProvider(t))
	require.NoError(t, err)

	quote := &token.MeltQuote{
		ID:         "melt-1",
		Request:    "lnfake1pay",
		CheckingID: "check-melt",
		Amount:     100,
		FeeReserve: 2,
		Unit:       "sat",
		State:      token.QuoteStateUnpaid,
	}
	require.NoError(t, qs.StoreMeltQuote(quote))

	got, err := qs.GetMeltQuote("melt-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(2), got.FeeReserve)

	missing, err := qs.GetMeltQuote("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestKeysetStoreRoundTrip(t *testing.T) {
	ks, err := NewGenericKeysetStore(newTestProvider(t))
	require.NoError(t, err)

	record := &KeysetRecord{
		ID:             "00ad268c4d1f5826",
		Unit:           "sat",
		Active:         true,
		DerivationPath: "m/0'/0'/0'",
		MaxOrder:       32,
		CreatedAt:      time.Now().Unix(),
	}
	require.NoError(t, ks.Store(record))

	got, err := ks.Get(record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.DerivationPath, got.DerivationPath)
	assert.True(t, got.Active)

	missing, err := ks.Get("00deadbeef000000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	record.Active = false
	require.NoError(t, ks.Store(record))

	records, err := ks.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Active)
}

func TestStoreFactory(t *testing.T) {
	config := &StoreConfig{
		Vendor:    db.LevelDB,
		Directory: t.TempDir(),
	}

	proofStore, promiseStore, quoteStore, keysetStore, err := CreateStore(config)
	require.NoError(t, err)
	require.NotNil(t, proofStore)
	require.NotNil(t, promiseStore)
	require.NotNil(t, quoteStore)
	require.NotNil(t, keysetStore)
	defer proofStore.MustClose()

	// Stores share one keyspace: records written through different stores
	// stay separated by prefix.
	require.NoError(t, proofStore.MarkSpentBatch([]token.Proof{testProof("shared", 1)}))
	require.NoError(t, keysetStore.Store(&KeysetRecord{ID: "00ad268c4d1f5826"}))

	secrets, err := proofStore.LoadSpentSecrets()
	require.NoError(t, err)
	assert.Len(t, secrets, 1)
}

func TestStoreFactoryInvalidConfig(t *testing.T) {
	_, _, _, _, err := CreateStore(&StoreConfig{Vendor: "bolt"})
	assert.Error(t, err)

	_, _, _, _, err = CreateStore(&StoreConfig{Vendor: db.LevelDB})
	assert.Error(t, err)

	_, _, _, _, err = CreateStore(nil)
	assert.Error(t, err)
}
