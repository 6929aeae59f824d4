package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/blocchat/chainledger/internal/auth"
	"github.com/blocchat/chainledger/internal/gate"
	"github.com/blocchat/chainledger/internal/ledger"
	"github.com/blocchat/chainledger/internal/profile"
	"github.com/blocchat/chainledger/internal/shop"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

type adminAddressKey struct{}

// Server is the HTTP API: public ledger, gate, profile and shop endpoints
// plus a signature-authenticated admin surface.
type Server struct {
	ledger   *ledger.Service
	gates    *gate.Evaluator
	profiles *profile.Service
	shops    *shop.Service
	auth     *auth.Service
	logger   *slog.Logger
}

func NewServer(
	ledgerSvc *ledger.Service,
	gates *gate.Evaluator,
	profiles *profile.Service,
	shops *shop.Service,
	authSvc *auth.Service,
	logger *slog.Logger,
) *Server {
	return &Server{
		ledger:   ledgerSvc,
		gates:    gates,
		profiles: profiles,
		shops:    shops,
		auth:     authSvc,
		logger:   logger.With("component", "api"),
	}
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Ledger
	mux.HandleFunc("POST /v1/transactions", s.handleRecordTransaction)
	mux.HandleFunc("GET /v1/transactions/{hash}", s.handleGetTransaction)
	mux.HandleFunc("GET /v1/conversations/{id}/transactions", s.handleListTransactions)

	// Gate
	mux.HandleFunc("GET /v1/conversations/{id}/gate", s.handleGetGate)
	mux.HandleFunc("POST /v1/conversations/{id}/gate/check", s.handleCheckGate)

	// Profiles
	mux.HandleFunc("POST /v1/profiles", s.handleGetOrCreateProfile)
	mux.HandleFunc("GET /v1/profiles/search", s.handleSearchProfiles)
	mux.HandleFunc("GET /v1/profiles/{wallet}", s.handleGetProfile)
	mux.HandleFunc("PUT /v1/profiles/{wallet}", s.handleUpdateProfile)
	mux.HandleFunc("POST /v1/profiles/{wallet}/username", s.handleClaimUsername)

	// Shops
	mux.HandleFunc("POST /v1/shops", s.handleCreateShop)
	mux.HandleFunc("GET /v1/shops/{id}", s.handleGetShop)
	mux.HandleFunc("PUT /v1/shops/{id}", s.handleRenameShop)
	mux.HandleFunc("DELETE /v1/shops/{id}", s.handleDeleteShop)
	mux.HandleFunc("GET /v1/conversations/{id}/shops", s.handleListShops)
	mux.HandleFunc("POST /v1/shops/{id}/items", s.handleAddItem)
	mux.HandleFunc("GET /v1/shops/{id}/items", s.handleListItems)
	mux.HandleFunc("PUT /v1/items/{id}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /v1/items/{id}", s.handleDeleteItem)

	// Admin auth
	mux.HandleFunc("POST /admin/v1/auth/nonce", s.handleAuthNonce)
	mux.HandleFunc("POST /admin/v1/auth/verify", s.handleAuthVerify)
	mux.HandleFunc("POST /admin/v1/auth/logout", s.requireSession(s.handleLogout))

	// Admin operations
	mux.HandleFunc("POST /admin/v1/reconcile", s.requireSession(s.handleReconcile))
	mux.HandleFunc("PUT /admin/v1/conversations/{id}/gate", s.requireSession(s.handleDefineGate))
	mux.HandleFunc("DELETE /admin/v1/conversations/{id}/gate", s.requireSession(s.handleDeleteGate))

	return mux
}

// requireSession rejects requests without a valid admin bearer token and
// records who performed the action.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}

		address, err := s.auth.Authenticate(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired session"}`, http.StatusUnauthorized)
			return
		}

		s.logger.Info("admin action",
			"method", r.Method,
			"path", r.URL.Path,
			"admin", address,
			"client_ip", extractClientIP(r),
		)

		ctx := context.WithValue(r.Context(), adminAddressKey{}, address)
		next(w, r.WithContext(ctx))
	}
}

func adminAddress(ctx context.Context) string {
	addr, _ := ctx.Value(adminAddressKey{}).(string)
	return addr
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSONBody reads and decodes a JSON request body into v.
// Returns false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}
