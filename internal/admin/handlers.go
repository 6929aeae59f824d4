package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/blocchat/chainledger/internal/auth"
	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/gate"
	"github.com/blocchat/chainledger/internal/ledger"
	"github.com/blocchat/chainledger/internal/profile"
	"github.com/blocchat/chainledger/internal/shop"
)

// --- Ledger endpoints ---

type recordTransactionRequest struct {
	TxHash         string  `json:"tx_hash"`
	FromAddress    string  `json:"from_address"`
	ToAddress      string  `json:"to_address"`
	Amount         string  `json:"amount"`
	TokenAddress   *string `json:"token_address"`
	ChainID        int64   `json:"chain_id"`
	ConversationID string  `json:"conversation_id"`
	MessageID      *string `json:"message_id"`
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req recordTransactionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	t, err := s.ledger.Record(r.Context(), ledger.RecordInput{
		TxHash:         req.TxHash,
		FromAddress:    req.FromAddress,
		ToAddress:      req.ToAddress,
		Amount:         req.Amount,
		TokenAddress:   req.TokenAddress,
		ChainID:        req.ChainID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidTransaction):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			writeError(w, http.StatusConflict, "transaction already recorded")
		default:
			s.logger.Error("record transaction failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.Get(r.Context(), r.PathValue("hash"))
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		s.logger.Error("get transaction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListByConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("list transactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// --- Gate endpoints ---

func (s *Server) handleGetGate(w http.ResponseWriter, r *http.Request) {
	g, err := s.gates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, gate.ErrGateNotFound) {
			writeError(w, http.StatusNotFound, "no gate for conversation")
			return
		}
		s.logger.Error("get gate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type checkGateRequest struct {
	WalletAddress string `json:"wallet_address"`
}

func (s *Server) handleCheckGate(w http.ResponseWriter, r *http.Request) {
	var req checkGateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	decision, err := s.gates.Evaluate(r.Context(), r.PathValue("id"), req.WalletAddress)
	if err != nil {
		switch {
		case errors.Is(err, gate.ErrInvalidGate):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, gate.ErrEvaluationUnavailable):
			writeError(w, http.StatusServiceUnavailable, "gate evaluation temporarily unavailable")
		default:
			s.logger.Error("gate check failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type defineGateRequest struct {
	Operator     string `json:"operator"`
	Requirements []struct {
		TokenAddress *string `json:"token_address"`
		TokenSymbol  string  `json:"token_symbol"`
		MinAmount    string  `json:"min_amount"`
	} `json:"requirements"`
}

func (s *Server) handleDefineGate(w http.ResponseWriter, r *http.Request) {
	var req defineGateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	in := gate.DefineInput{
		ConversationID: r.PathValue("id"),
		Operator:       model.GateOperator(req.Operator),
	}
	for _, reqt := range req.Requirements {
		in.Requirements = append(in.Requirements, gate.RequirementInput{
			TokenAddress: reqt.TokenAddress,
			TokenSymbol:  reqt.TokenSymbol,
			MinAmount:    reqt.MinAmount,
		})
	}

	stored, err := s.gates.Define(r.Context(), in)
	if err != nil {
		if errors.Is(err, gate.ErrInvalidGate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("define gate failed", "error", err, "admin", adminAddress(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteGate(w http.ResponseWriter, r *http.Request) {
	if err := s.gates.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("delete gate failed", "error", err, "admin", adminAddress(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Profile endpoints ---

type getOrCreateProfileRequest struct {
	WalletAddress string `json:"wallet_address"`
	InboxID       string `json:"inbox_id"`
}

func (s *Server) handleGetOrCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req getOrCreateProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	p, err := s.profiles.GetOrCreate(r.Context(), req.WalletAddress, req.InboxID)
	if err != nil {
		if errors.Is(err, profile.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("get or create profile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.GetByWallet(r.Context(), r.PathValue("wallet"))
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrInvalidAddress):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, profile.ErrProfileNotFound):
			writeError(w, http.StatusNotFound, "profile not found")
		default:
			s.logger.Error("get profile failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProfileRequest struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	p, err := s.profiles.Update(r.Context(), r.PathValue("wallet"), profile.UpdateInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Bio:         req.Bio,
	})
	if err != nil {
		s.writeProfileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type claimUsernameRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleClaimUsername(w http.ResponseWriter, r *http.Request) {
	var req claimUsernameRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	p, err := s.profiles.ClaimUsername(r.Context(), r.PathValue("wallet"), req.Username)
	if err != nil {
		s.writeProfileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrInvalidAddress), errors.Is(err, profile.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, profile.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username taken")
	case errors.Is(err, profile.ErrUsernameCooldown):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error("profile operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleSearchProfiles(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.profiles.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.logger.Error("profile search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if results == nil {
		results = []model.UserProfile{}
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Shop endpoints ---

type createShopRequest struct {
	ConversationID string `json:"conversation_id"`
	Name           string `json:"name"`
	OwnerAddress   string `json:"owner_address"`
}

func (s *Server) handleCreateShop(w http.ResponseWriter, r *http.Request) {
	var req createShopRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	created, err := s.shops.Create(r.Context(), req.ConversationID, req.Name, req.OwnerAddress)
	if err != nil {
		s.writeShopError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetShop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	found, err := s.shops.Get(r.Context(), id)
	if err != nil {
		s.writeShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListShops(w http.ResponseWriter, r *http.Request) {
	shops, err := s.shops.ListByConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeShopError(w, err)
		return
	}
	if shops == nil {
		shops = []model.Shop{}
	}
	writeJSON(w, http.StatusOK, shops)
}

type renameShopRequest struct {
	Name         string `json:"name"`
	OwnerAddress string `json:"owner_address"`
}

func (s *Server) handleRenameShop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	var req renameShopRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	updated, err := s.shops.Rename(r.Context(), id, req.OwnerAddress, req.Name)
	if err != nil {
		s.writeShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteShop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	if err := s.shops.Delete(r.Context(), id, r.URL.Query().Get("owner_address")); err != nil {
		s.writeShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type itemRequest struct {
	OwnerAddress string  `json:"owner_address"`
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Price        string  `json:"price"`
	TokenAddress *string `json:"token_address"`
	TokenSymbol  string  `json:"token_symbol"`
	ImageURL     *string `json:"image_url"`
}

func (r itemRequest) toInput() shop.ItemInput {
	return shop.ItemInput{
		Name:         r.Name,
		Description:  r.Description,
		Price:        r.Price,
		TokenAddress: r.TokenAddress,
		TokenSymbol:  r.TokenSymbol,
		ImageURL:     r.ImageURL,
	}
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	var req itemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	item, err := s.shops.AddItem(r.Context(), id, req.OwnerAddress, req.toInput())
	if err != nil {
		s.writeShopError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	items, err := s.shops.ListItems(r.Context(), id)
	if err != nil {
		s.writeShopError(w, err)
		return
	}
	if items == nil {
		items = []model.ShopItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	var req itemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	item, err := s.shops.UpdateItem(r.Context(), id, req.OwnerAddress, req.toInput())
	if err != nil {
		s.writeShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	if err := s.shops.DeleteItem(r.Context(), id, r.URL.Query().Get("owner_address")); err != nil {
		s.writeShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) writeShopError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shop.ErrInvalidShop):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shop.ErrShopNotFound), errors.Is(err, shop.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shop.ErrNotOwner):
		writeError(w, http.StatusForbidden, "caller does not own this shop")
	default:
		s.logger.Error("shop operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseUUID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed id")
		return uuid.Nil, false
	}
	return id, true
}

// --- Admin auth endpoints ---

type authNonceRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleAuthNonce(w http.ResponseWriter, r *http.Request) {
	var req authNonceRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	nonce, err := s.auth.IssueNonce(req.Address)
	if err != nil {
		if errors.Is(err, auth.ErrNotAllowed) {
			writeError(w, http.StatusForbidden, "address not allowlisted")
			return
		}
		s.logger.Error("issue nonce failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

type authVerifyRequest struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req authVerifyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	token, err := s.auth.Verify(req.Address, req.Nonce, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAllowed):
			writeError(w, http.StatusForbidden, "address not allowlisted")
		case errors.Is(err, auth.ErrInvalidNonce), errors.Is(err, auth.ErrInvalidSignature):
			writeError(w, http.StatusUnauthorized, "authentication failed")
		default:
			s.logger.Error("auth verify failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.auth.Revoke(token)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Admin operations ---

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.ReconcilePending(r.Context())
	if err != nil {
		s.logger.Error("manual reconcile failed", "error", err, "admin", adminAddress(r.Context()))
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
