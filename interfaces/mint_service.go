package interfaces

import (
	"context"

	"github.com/veilmint/veilmint/token"
)

// MintService is the operation surface the RPC layer exposes. The ledger
// implements it; handlers stay free of mint logic.
type MintService interface {
	// GetKeys returns the denomination public keys of the active keyset.
	GetKeys() (token.KeysetInfo, map[uint64]string, error)
	// GetKeysetKeys returns the keys of one keyset by id, active or not.
	GetKeysetKeys(keysetID string) (token.KeysetInfo, map[uint64]string, error)
	// GetKeysets lists every keyset the mint has derived.
	GetKeysets() ([]token.KeysetInfo, error)

	RequestMintQuote(ctx context.Context, amount uint64, unit string) (*token.MintQuote, error)
	GetMintQuoteState(ctx context.Context, quoteID string) (*token.MintQuote, error)
	// MintTokens signs outputs against a paid quote. Issuance is
	// all-or-nothing per quote.
	MintTokens(ctx context.Context, quoteID string, outputs []token.BlindedMessage) ([]token.BlindedSignature, error)

	RequestMeltQuote(ctx context.Context, request string, unit string) (*token.MeltQuote, error)
	GetMeltQuoteState(ctx context.Context, quoteID string) (*token.MeltQuote, error)
	// Melt invalidates inputs and pays the quoted request, returning change
	// signatures for overpaid fees when blank outputs were supplied.
	Melt(ctx context.Context, quoteID string, inputs []token.Proof, outputs []token.BlindedMessage) (*token.MeltQuote, []token.BlindedSignature, error)

	// Split invalidates inputs and issues outputs of equal total value.
	Split(ctx context.Context, inputs []token.Proof, outputs []token.BlindedMessage) ([]token.BlindedSignature, error)
	// Redeem invalidates inputs without reissue and returns the settled amount.
	Redeem(ctx context.Context, inputs []token.Proof) (uint64, error)

	CheckState(ctx context.Context, secrets []string) ([]token.ProofState, error)
	// Restore re-issues the signatures previously given for outputs, for
	// wallets recovering from seed.
	Restore(ctx context.Context, outputs []token.BlindedMessage) ([]token.BlindedMessage, []token.BlindedSignature, error)
}
