package jsonrpc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/gorilla/mux"

	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/exception"
	"github.com/veilmint/veilmint/interfaces"
	"github.com/veilmint/veilmint/jsonx"
	"github.com/veilmint/veilmint/logx"
	"github.com/veilmint/veilmint/monitoring"
	"github.com/veilmint/veilmint/ratelimit"
	"github.com/veilmint/veilmint/token"
)

// Bodies larger than this are cut off before JSON parsing. Even a melt with
// hundreds of proofs stays well under it.
const maxRequestBody = 128 * 1024

// --- Error type used by handlers ---

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes by family. The machine-readable mint error code
// rides in the error data, so wallets should switch on that rather than
// the numeric code.
const (
	codeInternal      = -32000
	codeQuoteNotFound = -32001
	codeQuoteState    = -32002
	codeProofState    = -32003
	codeSettlement    = -32004
	codeValidation    = -32005
)

func rpcCodeFor(code errors.MintErrorCode) int {
	switch code {
	case errors.ErrCodeQuoteNotFound:
		return codeQuoteNotFound
	case errors.ErrCodeQuoteNotPaid, errors.ErrCodeQuoteAlreadyIssued, errors.ErrCodeQuoteExpired,
		errors.ErrCodeQuotePending, errors.ErrCodeQuoteAlreadyPaid:
		return codeQuoteState
	case errors.ErrCodeAlreadySpent, errors.ErrCodeProofPending:
		return codeProofState
	case errors.ErrCodePaymentFailed, errors.ErrCodeInsufficientFee:
		return codeSettlement
	case errors.ErrCodeInternal:
		return codeInternal
	default:
		return codeValidation
	}
}

// fromMintError converts a ledger error into an rpcError, attaching the
// structured mint error as data when there is one.
func fromMintError(err error) *rpcError {
	var me *errors.MintError
	if stderrors.As(err, &me) {
		return &rpcError{Code: rpcCodeFor(me.Code), Message: me.Message, Data: me}
	}
	return &rpcError{Code: codeInternal, Message: err.Error()}
}

func toJRPC2Error(e *rpcError) error {
	if e == nil {
		return nil
	}
	if e.Data != nil {
		return jrpc2.Errorf(jrpc2.Code(e.Code), "%s", e.Message).WithData(e.Data)
	}
	return jrpc2.Errorf(jrpc2.Code(e.Code), "%s", e.Message)
}

// --- Params/Results ---

type mintInfoResponse struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Description  string `json:"description,omitempty"`
	Unit         string `json:"unit"`
	ActiveKeyset string `json:"active_keyset"`
}

type keysetKeysParams struct {
	KeysetID string `json:"keyset_id"`
}

type keysResponse struct {
	ID     string            `json:"id"`
	Unit   string            `json:"unit"`
	Active bool              `json:"active"`
	Keys   map[uint64]string `json:"keys"`
}

type keysetsResponse struct {
	Keysets []token.KeysetInfo `json:"keysets"`
}

type mintQuoteParams struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit,omitempty"`
}

type mintQuoteResponse struct {
	Quote     string `json:"quote"`
	Request   string `json:"request"`
	Amount    uint64 `json:"amount"`
	Unit      string `json:"unit"`
	State     string `json:"state"`
	ExpiresAt int64  `json:"expires_at"`
}

type quoteStateParams struct {
	Quote string `json:"quote"`
}

type mintTokensParams struct {
	Quote   string                 `json:"quote"`
	Outputs []token.BlindedMessage `json:"outputs"`
}

type signaturesResponse struct {
	Signatures []token.BlindedSignature `json:"signatures"`
}

type meltQuoteParams struct {
	Request string `json:"request"`
	Unit    string `json:"unit,omitempty"`
}

type meltQuoteResponse struct {
	Quote      string `json:"quote"`
	Amount     uint64 `json:"amount"`
	FeeReserve uint64 `json:"fee_reserve"`
	Unit       string `json:"unit"`
	State      string `json:"state"`
	FeePaid    uint64 `json:"fee_paid,omitempty"`
	Preimage   string `json:"preimage,omitempty"`
	ExpiresAt  int64  `json:"expires_at"`
}

type meltParams struct {
	Quote   string                 `json:"quote"`
	Inputs  []token.Proof          `json:"inputs"`
	Outputs []token.BlindedMessage `json:"outputs,omitempty"`
}

type meltResponse struct {
	meltQuoteResponse
	Change []token.BlindedSignature `json:"change,omitempty"`
}

type splitParams struct {
	Inputs  []token.Proof          `json:"inputs"`
	Outputs []token.BlindedMessage `json:"outputs"`
}

type redeemParams struct {
	Inputs []token.Proof `json:"inputs"`
}

type redeemResponse struct {
	Amount uint64 `json:"amount"`
}

type checkStateParams struct {
	Secrets []string `json:"secrets"`
}

type checkStateResponse struct {
	States []token.ProofState `json:"states"`
}

type restoreParams struct {
	Outputs []token.BlindedMessage `json:"outputs"`
}

type restoreResponse struct {
	Outputs    []token.BlindedMessage   `json:"outputs"`
	Signatures []token.BlindedSignature `json:"signatures"`
}

func newMintQuoteResponse(q *token.MintQuote) *mintQuoteResponse {
	return &mintQuoteResponse{
		Quote:     q.ID,
		Request:   q.Request,
		Amount:    q.Amount,
		Unit:      q.Unit,
		State:     string(q.State),
		ExpiresAt: q.ExpiresAt,
	}
}

func newMeltQuoteResponse(q *token.MeltQuote) meltQuoteResponse {
	return meltQuoteResponse{
		Quote:      q.ID,
		Amount:     q.Amount,
		FeeReserve: q.FeeReserve,
		Unit:       q.Unit,
		State:      string(q.State),
		FeePaid:    q.FeePaid,
		Preimage:   q.Preimage,
		ExpiresAt:  q.ExpiresAt,
	}
}

// --- Server ---

// MintInfo describes the mint to wallets via mint.info.
type MintInfo struct {
	Name        string
	Version     string
	Description string
}

type Server struct {
	addr       string
	mintSvc    interfaces.MintService
	info       MintInfo
	startedAt  time.Time
	limiter    *ratelimit.GlobalRateLimiter
	corsConfig CORSConfig
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func NewServer(addr string, mintSvc interfaces.MintService, info MintInfo) *Server {
	return &Server{
		addr:      addr,
		mintSvc:   mintSvc,
		info:      info,
		startedAt: time.Now(),
		corsConfig: CORSConfig{
			AllowedOrigins: []string{},
			AllowedMethods: []string{},
			AllowedHeaders: []string{},
			MaxAge:         0,
		},
	}
}

func (s *Server) Start() {
	methods := s.buildMethodMap()
	jh := jhttp.NewBridge(methods, &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if s.limiter != nil {
			ip := extractClientIPFromRequest(r)
			if !s.limiter.Allow(r.Context(), ip) {
				logx.Debug("JSONRPC", "Rate limited request from ", ip)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		jh.ServeHTTP(w, r)
	})

	router := mux.NewRouter()
	monitoring.RegisterMetrics(router)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	// pprof registers itself on the default mux.
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	router.PathPrefix("/").Handler(h)

	exception.SafeGo("jsonrpc-server", func() {
		logx.Info("JSONRPC", "JSON-RPC server listening on ", s.addr)
		if err := http.ListenAndServe(s.addr, router); err != nil {
			logx.Error("JSONRPC", "JSON-RPC server stopped: ", err)
		}
	})
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// SetRateLimiter installs a request limiter checked before dispatch.
func (s *Server) SetRateLimiter(limiter *ratelimit.GlobalRateLimiter) {
	s.limiter = limiter
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		Status  string `json:"status"`
		Name    string `json:"name"`
		Version string `json:"version"`
		Uptime  uint64 `json:"uptime_seconds"`
	}{
		Status:  "ok",
		Name:    s.info.Name,
		Version: s.info.Version,
		Uptime:  uint64(time.Since(s.startedAt).Seconds()),
	}

	data, err := jsonx.Marshal(resp)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) observe(method string, start time.Time) {
	monitoring.ObserveRPCDuration(method, time.Since(start))
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodMintInfo: handler.New(func(ctx context.Context) (*mintInfoResponse, error) {
			defer s.observe(MethodMintInfo, time.Now())
			res, err := s.rpcMintInfo()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*mintInfoResponse), nil
		}),
		MethodMintKeys: handler.New(func(ctx context.Context) (*keysResponse, error) {
			defer s.observe(MethodMintKeys, time.Now())
			res, err := s.rpcKeys()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*keysResponse), nil
		}),
		MethodMintKeysetKeys: handler.New(func(ctx context.Context, p keysetKeysParams) (*keysResponse, error) {
			defer s.observe(MethodMintKeysetKeys, time.Now())
			res, err := s.rpcKeysetKeys(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*keysResponse), nil
		}),
		MethodMintKeysets: handler.New(func(ctx context.Context) (*keysetsResponse, error) {
			defer s.observe(MethodMintKeysets, time.Now())
			res, err := s.rpcKeysets()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*keysetsResponse), nil
		}),
		MethodMintQuote: handler.New(func(ctx context.Context, p mintQuoteParams) (*mintQuoteResponse, error) {
			defer s.observe(MethodMintQuote, time.Now())
			res, err := s.rpcMintQuote(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*mintQuoteResponse), nil
		}),
		MethodMintQuoteState: handler.New(func(ctx context.Context, p quoteStateParams) (*mintQuoteResponse, error) {
			defer s.observe(MethodMintQuoteState, time.Now())
			res, err := s.rpcMintQuoteState(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*mintQuoteResponse), nil
		}),
		MethodMintTokens: handler.New(func(ctx context.Context, p mintTokensParams) (*signaturesResponse, error) {
			defer s.observe(MethodMintTokens, time.Now())
			res, err := s.rpcMintTokens(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*signaturesResponse), nil
		}),
		MethodMeltQuote: handler.New(func(ctx context.Context, p meltQuoteParams) (*meltQuoteResponse, error) {
			defer s.observe(MethodMeltQuote, time.Now())
			res, err := s.rpcMeltQuote(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*meltQuoteResponse), nil
		}),
		MethodMeltQuoteState: handler.New(func(ctx context.Context, p quoteStateParams) (*meltQuoteResponse, error) {
			defer s.observe(MethodMeltQuoteState, time.Now())
			res, err := s.rpcMeltQuoteState(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*meltQuoteResponse), nil
		}),
		MethodMelt: handler.New(func(ctx context.Context, p meltParams) (*meltResponse, error) {
			defer s.observe(MethodMelt, time.Now())
			res, err := s.rpcMelt(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*meltResponse), nil
		}),
		MethodSplit: handler.New(func(ctx context.Context, p splitParams) (*signaturesResponse, error) {
			defer s.observe(MethodSplit, time.Now())
			res, err := s.rpcSplit(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*signaturesResponse), nil
		}),
		MethodRedeem: handler.New(func(ctx context.Context, p redeemParams) (*redeemResponse, error) {
			defer s.observe(MethodRedeem, time.Now())
			res, err := s.rpcRedeem(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*redeemResponse), nil
		}),
		MethodCheckState: handler.New(func(ctx context.Context, p checkStateParams) (*checkStateResponse, error) {
			defer s.observe(MethodCheckState, time.Now())
			res, err := s.rpcCheckState(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*checkStateResponse), nil
		}),
		MethodRestore: handler.New(func(ctx context.Context, p restoreParams) (*restoreResponse, error) {
			defer s.observe(MethodRestore, time.Now())
			res, err := s.rpcRestore(ctx, p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*restoreResponse), nil
		}),
	}
}

// --- Method implementations ---

func (s *Server) rpcMintInfo() (interface{}, *rpcError) {
	info, _, err := s.mintSvc.GetKeys()
	if err != nil {
		return nil, fromMintError(err)
	}
	return &mintInfoResponse{
		Name:         s.info.Name,
		Version:      s.info.Version,
		Description:  s.info.Description,
		Unit:         info.Unit,
		ActiveKeyset: info.ID,
	}, nil
}

func (s *Server) rpcKeys() (interface{}, *rpcError) {
	info, keys, err := s.mintSvc.GetKeys()
	if err != nil {
		return nil, fromMintError(err)
	}
	return &keysResponse{
		ID:     info.ID,
		Unit:   info.Unit,
		Active: info.Active,
		Keys:   keys,
	}, nil
}

func (s *Server) rpcKeysetKeys(p keysetKeysParams) (interface{}, *rpcError) {
	info, keys, err := s.mintSvc.GetKeysetKeys(p.KeysetID)
	if err != nil {
		return nil, fromMintError(err)
	}
	return &keysResponse{
		ID:     info.ID,
		Unit:   info.Unit,
		Active: info.Active,
		Keys:   keys,
	}, nil
}

func (s *Server) rpcKeysets() (interface{}, *rpcError) {
	keysets, err := s.mintSvc.GetKeysets()
	if err != nil {
		return nil, fromMintError(err)
	}
	return &keysetsResponse{Keysets: keysets}, nil
}

func (s *Server) rpcMintQuote(ctx context.Context, p mintQuoteParams) (interface{}, *rpcError) {
	quote, err := s.mintSvc.RequestMintQuote(ctx, p.Amount, p.Unit)
	if err != nil {
		return nil, fromMintError(err)
	}
	return newMintQuoteResponse(quote), nil
}

func (s *Server) rpcMintQuoteState(ctx context.Context, p quoteStateParams) (interface{}, *rpcError) {
	quote, err := s.mintSvc.GetMintQuoteState(ctx, p.Quote)
	if err != nil {
		return nil, fromMintError(err)
	}
	return newMintQuoteResponse(quote), nil
}

func (s *Server) rpcMintTokens(ctx context.Context, p mintTokensParams) (interface{}, *rpcError) {
	signatures, err := s.mintSvc.MintTokens(ctx, p.Quote, p.Outputs)
	if err != nil {
		return nil, fromMintError(err)
	}
	return &signaturesResponse{Signatures: signatures}, nil
}

func (s *Server) rpcMeltQuote(ctx context.Context, p meltQuoteParams) (interface{}, *rpcError) {
	quote, err := s.mintSvc.RequestMeltQuote(ctx, p.Request, p.Unit)
	if err != nil {
		return nil, fromMintError(err)
	}
	res := newMeltQuoteResponse(quote)
	return &res, nil
}

func (s *Server) rpcMeltQuoteState(ctx context.Context, p quoteStateParams) (interface{}, *rpcError) {
	quote, err := s.mintSvc.GetMeltQuoteState(ctx, p.Quote)
	if err != nil {
		return nil, fromMintError(err)
	}
	res := newMeltQuoteResponse(quote)
	return &res, nil
}

func (s *Server) rpcMelt(ctx context.Context, p meltParams) (interface{}, *rpcError) {
	quote, change, err := s.mintSvc.Melt(ctx, p.Quote, p.Inputs, p.Outputs)
	if err != nil {
		return nil, fromMintError(err)
	}
	return &meltResponse{
		meltQuoteResponse: newMeltQuoteResponse(quote),
		Change:            change,
	}, nil
}

func (s *Server) rpcSplit(ctx context.Context, p splitParams) (interface{}, *rpcError) {
	signatures, err := s.mintSvc.Split(ctx, p.Inputs, p.Outputs)
	if err != nil {
		return nil, fromMintError(err)
	}
	return &signaturesResponse{Signatures: signatures}, nil
}

func (s *Server) rpcRedeem(ctx context.Context, p redeemParams) (interface{}, *rpcError) {
	amount, err := s.mintSvc.Redeem(ctx, p.Inputs)
	if err != nil {
		return nil, fromMintError(err)
	}
	return &redeemResponse{Amount: amount}, nil
}

func (s *Server) rpcCheckState(ctx context.Context, p checkStateParams) (interface{}, *rpcError) {
	states, err := s.mintSvc.CheckState(ctx, p.Secrets)
	if err != nil {
		return nil, fromMintError(err)
	}
	return &checkStateResponse{States: states}, nil
}

func (s *Server) rpcRestore(ctx context.Context, p restoreParams) (interface{}, *rpcError) {
	outputs, signatures, err := s.mintSvc.Restore(ctx, p.Outputs)
	if err != nil {
		return nil, fromMintError(err)
	}
	return &restoreResponse{Outputs: outputs, Signatures: signatures}, nil
}

// --- CORS ---

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	// Set allowed origins
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
	}

	// Set allowed methods
	if len(s.corsConfig.AllowedMethods) > 0 {
		methods := strings.Join(s.corsConfig.AllowedMethods, ", ")
		w.Header().Set("Access-Control-Allow-Methods", methods)
	}

	// Set allowed headers
	if len(s.corsConfig.AllowedHeaders) > 0 {
		headers := strings.Join(s.corsConfig.AllowedHeaders, ", ")
		w.Header().Set("Access-Control-Allow-Headers", headers)
	}

	// Set max age
	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.corsConfig.MaxAge))
	}
}

// CORSFromEnv reads environment variables and constructs a CORSConfig.
// Returns (cfg, true) if any CORS-related env var is set; otherwise (zero, false).
// Supported:
// - CORS_ALLOWED_ORIGINS: comma-separated list
// - CORS_ALLOWED_METHODS: comma-separated list
// - CORS_ALLOWED_HEADERS: comma-separated list
// - CORS_MAX_AGE: integer seconds
func CORSFromEnv() (CORSConfig, bool) {
	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	methods := os.Getenv("CORS_ALLOWED_METHODS")
	headers := os.Getenv("CORS_ALLOWED_HEADERS")
	maxAgeStr := os.Getenv("CORS_MAX_AGE")

	var maxAge int
	if maxAgeStr != "" {
		if v, err := strconv.Atoi(maxAgeStr); err == nil {
			maxAge = v
		}
	}

	var allowedOrigins, allowedMethods, allowedHeaders []string
	if origins != "" {
		allowedOrigins = splitAndTrim(origins)
	}
	if methods != "" {
		allowedMethods = splitAndTrim(methods)
	}
	if headers != "" {
		allowedHeaders = splitAndTrim(headers)
	}

	provided := len(allowedOrigins) > 0 || len(allowedMethods) > 0 || len(allowedHeaders) > 0 || maxAge > 0
	if !provided {
		return CORSConfig{}, false
	}

	return CORSConfig{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: allowedMethods,
		AllowedHeaders: allowedHeaders,
		MaxAge:         maxAge,
	}, true
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
