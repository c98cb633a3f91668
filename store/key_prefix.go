package store

// Declare database key prefix for objects
const (
	PrefixSpentProof   = "spent:"
	PrefixPendingProof = "pending:"

	PrefixPromise = "promise:"

	PrefixMintQuote         = "mint_quote:"
	PrefixMintQuoteChecking = "mint_quote_checking:"
	PrefixMeltQuote         = "melt_quote:"

	PrefixKeyset = "keyset:"
)
