package jsonrpc

import (
	"net"
	"net/http"
	"strings"

	"github.com/veilmint/veilmint/logx"
)

// JSON-RPC Method name constants
const (
	// Key distribution methods
	MethodMintInfo       = "mint.info"
	MethodMintKeys       = "mint.keys"
	MethodMintKeysetKeys = "mint.keysetkeys"
	MethodMintKeysets    = "mint.keysets"

	// Issuance methods
	MethodMintQuote      = "mint.quote"
	MethodMintQuoteState = "mint.quotestate"
	MethodMintTokens     = "mint.tokens"

	// Settlement methods
	MethodMeltQuote      = "mint.meltquote"
	MethodMeltQuoteState = "mint.meltquotestate"
	MethodMelt           = "mint.melt"

	// Swap methods
	MethodSplit  = "mint.split"
	MethodRedeem = "mint.redeem"

	// Wallet recovery methods
	MethodCheckState = "mint.checkstate"
	MethodRestore    = "mint.restore"
)

func extractClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		logx.Debug("JSONRPC", "X-Forwarded-For: ", xff)
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}
