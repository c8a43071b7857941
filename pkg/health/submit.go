package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
	"github.com/speedrun-hq/speedrun-settlement/pkg/orders"
	"github.com/speedrun-hq/speedrun-settlement/pkg/reactor"
	"github.com/speedrun-hq/speedrun-settlement/pkg/settler"
)

type signedOrderRequest struct {
	Order hexutil.Bytes `json:"order"`
	Sig   hexutil.Bytes `json:"sig"`
}

func (r signedOrderRequest) signed() models.SignedOrder {
	return models.SignedOrder{Order: r.Order, Sig: r.Sig}
}

type executeRequest struct {
	Caller       common.Address       `json:"caller"`
	Orders       []signedOrderRequest `json:"orders"`
	FillContract common.Address       `json:"fill_contract"`
	FillData     hexutil.Bytes        `json:"fill_data"`
}

type executeResponse struct {
	OrderHashes []common.Hash `json:"order_hashes"`
}

type initiateRequest struct {
	Caller            common.Address `json:"caller"`
	Order             hexutil.Bytes  `json:"order"`
	Sig               hexutil.Bytes  `json:"sig"`
	TargetChainFiller common.Address `json:"target_chain_filler"`
}

type settlementResponse struct {
	OrderHash  common.Hash       `json:"order_hash"`
	Settlement models.Settlement `json:"settlement"`
}

type callerRequest struct {
	Caller common.Address `json:"caller"`
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

type eventEntry struct {
	Index int          `json:"index"`
	Name  string       `json:"name"`
	Event ledger.Event `json:"event"`
}

type mintRequest struct {
	Token  common.Address `json:"token"`
	Owner  common.Address `json:"owner"`
	Amount *hexutil.Big   `json:"amount"`
}

type approveRequest struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *hexutil.Big   `json:"amount"`
}

// handleExecute fills a batch of signed single chain orders through a
// deployed fill contract
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Caller == (common.Address{}) {
		http.Error(w, "Missing caller", http.StatusBadRequest)
		return
	}

	signed := make([]models.SignedOrder, len(req.Orders))
	hashes := make([]common.Hash, len(req.Orders))
	for i, o := range req.Orders {
		signed[i] = o.signed()
		hashes[i] = orders.Hash(o.Order)
	}
	if err := s.reactor.ExecuteBatch(req.Caller, signed, req.FillContract, req.FillData); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, executeResponse{OrderHashes: hashes})
}

// handleInitiate opens a settlement for a signed cross-chain order
func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Caller == (common.Address{}) {
		http.Error(w, "Missing caller", http.StatusBadRequest)
		return
	}

	hash, err := s.settler.InitiateSettlement(req.Caller, models.SignedOrder{Order: req.Order, Sig: req.Sig}, req.TargetChainFiller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSettlement(w, http.StatusCreated, hash)
}

// handleSettlementAction runs a challenge, finalize or cancel for the caller
// named in the body
func (s *Server) handleSettlementAction(action func(caller common.Address, orderHash common.Hash) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash, err := parseHash(r.PathValue("hash"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req callerRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Caller == (common.Address{}) {
			http.Error(w, "Missing caller", http.StatusBadRequest)
			return
		}
		if err := action(req.Caller, hash); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeSettlement(w, http.StatusOK, hash)
	}
}

// handleEvents pages through the committed event log from the from index
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("Invalid from parameter %q", v), http.StatusBadRequest)
			return
		}
		from = n
	}

	events := s.ledger.EventsSince(from)
	out := make([]eventEntry, len(events))
	for i, ev := range events {
		out[i] = eventEntry{Index: from + i, Name: ev.Name(), Event: ev}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	token, owner := r.PathValue("token"), r.PathValue("owner")
	if !common.IsHexAddress(token) || !common.IsHexAddress(owner) {
		http.Error(w, "Invalid address", http.StatusBadRequest)
		return
	}
	balance := s.ledger.BalanceOf(common.HexToAddress(token), common.HexToAddress(owner))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   common.HexToAddress(token),
		"owner":   common.HexToAddress(owner),
		"balance": (*hexutil.Big)(balance),
	})
}

// handleMint credits tokens out of thin air; only served with the faucet on
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Amount == nil {
		http.Error(w, "Missing amount", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Mint(req.Token, req.Owner, req.Amount.ToInt()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.InfoWithComponent(logger.Health, "Minted %s of %s to %s", req.Amount.ToInt(), req.Token.Hex(), req.Owner.Hex())
	w.WriteHeader(http.StatusOK)
}

// handleApprove sets an allowance on behalf of owner; only served with the faucet on
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount := ledger.MaxUint256
	if req.Amount != nil {
		amount = req.Amount.ToInt()
	}
	if err := s.ledger.Approve(req.Token, req.Owner, req.Spender, amount); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeSettlement(w http.ResponseWriter, code int, hash common.Hash) {
	record, ok := s.settler.Settlement(hash)
	if !ok {
		http.Error(w, fmt.Sprintf("No settlement for %s", hash.Hex()), http.StatusNotFound)
		return
	}
	s.writeJSON(w, code, settlementResponse{OrderHash: hash, Settlement: record})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, errorType := statusFor(err)
	s.writeJSON(w, code, errorResponse{Error: err.Error(), Type: errorType})
}

// statusFor maps an engine error to an HTTP status and its error label
func statusFor(err error) (int, string) {
	if errors.Is(err, settler.ErrSettlementDoesNotExist) {
		return http.StatusNotFound, "not_found"
	}
	if errorType := reactor.ClassifyError(err); errorType == "malformed_order" {
		return http.StatusBadRequest, errorType
	}

	var settlementErr *settler.SettlementError
	if errors.As(err, &settlementErr) {
		errorType := settler.ClassifyError(err)
		switch errorType {
		case "already_processed":
			return http.StatusConflict, errorType
		case "too_early":
			return http.StatusTooEarly, errorType
		case "oracle_unavailable":
			return http.StatusServiceUnavailable, errorType
		}
		return http.StatusUnprocessableEntity, errorType
	}

	errorType := reactor.ClassifyError(err)
	switch errorType {
	case "already_filled":
		return http.StatusConflict, errorType
	case "unknown_error":
		return http.StatusInternalServerError, errorType
	}
	return http.StatusUnprocessableEntity, errorType
}
