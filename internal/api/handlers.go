/**
 * @description
 * HTTP handlers for the batch ledger API.
 */
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/Monadic-DNA/Batcher-sub000/internal/app"
	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/ledger"
)

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service *app.Service
	jobs    *app.Jobs
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service, jobs *app.Jobs, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, jobs: jobs, logger: logger}
}

type paymentRequest struct {
	DiscountCode string `json:"discount_code"`
}

type commitmentRequest struct {
	CommitmentHash string `json:"commitment_hash"`
}

type transitionRequest struct {
	State        string `json:"state"`
	BalancePrice int64  `json:"balance_price"`
}

type priceRequest struct {
	Price int64 `json:"price"`
}

type sizeRequest struct {
	MaxSize uint32 `json:"max_size"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type discountCodeRequest struct {
	Code             string `json:"code"`
	Value            int64  `json:"value"`
	IsPercentage     bool   `json:"is_percentage"`
	MaxUses          uint32 `json:"max_uses"`
	AppliesToDeposit bool   `json:"applies_to_deposit"`
	AppliesToBalance bool   `json:"applies_to_balance"`
}

type participantView struct {
	domain.Participant
	CanStillPay bool `json:"can_still_pay"`
}

type currentBatchView struct {
	Batch        domain.Batch `json:"batch"`
	DepositPrice int64        `json:"deposit_price"`
	Paused       bool         `json:"paused"`
}

// --- participant endpoints ---

func (h *Handler) handleJoinBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthenticated", "Unauthorized")
		return
	}
	var req paymentRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	participant, err := h.service.Join(r.Context(), caller, req.DiscountCode)
	if err != nil {
		h.writeLedgerError(w, "join batch", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, participant)
}

func (h *Handler) handlePayBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthenticated", "Unauthorized")
		return
	}
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	participant, err := h.service.Pay(r.Context(), caller, batchID, req.DiscountCode)
	if err != nil {
		h.writeLedgerError(w, "pay balance", err)
		return
	}
	respondWithJSON(w, http.StatusOK, participant)
}

func (h *Handler) handleStoreCommitment(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthenticated", "Unauthorized")
		return
	}
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	var req commitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	raw, err := hexutil.Decode(req.CommitmentHash)
	if err != nil || len(raw) != common.HashLength {
		h.writeLedgerError(w, "store commitment", ledger.ErrInvalidCommitment)
		return
	}

	if err := h.service.Commit(r.Context(), caller, batchID, common.BytesToHash(raw)); err != nil {
		h.writeLedgerError(w, "store commitment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- views ---

func (h *Handler) handleGetCurrentBatch(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, currentBatchView{
		Batch:        h.service.CurrentBatch(),
		DepositPrice: h.service.DepositPrice(),
		Paused:       h.service.Paused(),
	})
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	batch, err := h.service.BatchInfo(batchID)
	if err != nil {
		h.writeLedgerError(w, "get batch", err)
		return
	}
	respondWithJSON(w, http.StatusOK, batch)
}

func (h *Handler) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	participants, err := h.service.Participants(batchID)
	if err != nil {
		h.writeLedgerError(w, "list participants", err)
		return
	}
	respondWithJSON(w, http.StatusOK, participants)
}

func (h *Handler) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	account, ok := addressParam(w, r)
	if !ok {
		return
	}
	participant, err := h.service.ParticipantInfo(batchID, account)
	if err != nil {
		h.writeLedgerError(w, "get participant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, participantView{
		Participant: participant,
		CanStillPay: h.service.CanStillPay(batchID, account),
	})
}

func (h *Handler) handleCanStillPay(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	account, ok := addressParam(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{
		"is_participant": h.service.IsParticipant(batchID, account),
		"can_still_pay":  h.service.CanStillPay(batchID, account),
	})
}

func (h *Handler) handleAllParticipantsPaid(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	paid, err := h.service.AllParticipantsPaid(batchID)
	if err != nil {
		h.writeLedgerError(w, "all participants paid", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"all_paid": paid})
}

func (h *Handler) handleListBatchEvents(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			respondWithError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}
	events, err := h.service.Events(r.Context(), batchID, limit)
	if err != nil {
		h.writeLedgerError(w, "list events", err)
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

func (h *Handler) handleGetDiscountCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.LookupCode(chi.URLParam(r, "code"))
	if err != nil {
		h.writeLedgerError(w, "get discount code", err)
		return
	}
	respondWithJSON(w, http.StatusOK, code)
}

// --- admin endpoints ---

func (h *Handler) handleTransitionBatch(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	batch, err := h.service.Transition(r.Context(), caller, batchID, req.State, req.BalancePrice)
	if err != nil {
		h.writeLedgerError(w, "transition batch", err)
		return
	}
	respondWithJSON(w, http.StatusOK, batch)
}

func (h *Handler) handleSlashParticipant(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	account, ok := addressParam(w, r)
	if !ok {
		return
	}
	participant, err := h.service.Slash(r.Context(), caller, batchID, account)
	if err != nil {
		h.writeLedgerError(w, "slash participant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, participant)
}

func (h *Handler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	account, ok := addressParam(w, r)
	if !ok {
		return
	}
	refund, err := h.service.Remove(r.Context(), caller, batchID, account)
	if err != nil {
		h.writeLedgerError(w, "remove participant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"refunded": refund})
}

func (h *Handler) handleSetBalancePrice(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.service.UpdateBalancePrice(r.Context(), caller, batchID, req.Price); err != nil {
		h.writeLedgerError(w, "set balance price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetBatchMaxSize(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	var req sizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.service.UpdateMaxSize(r.Context(), caller, batchID, req.MaxSize); err != nil {
		h.writeLedgerError(w, "set batch max size", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetDefaultBatchSize(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req sizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.service.UpdateDefaultSize(r.Context(), caller, req.MaxSize); err != nil {
		h.writeLedgerError(w, "set default batch size", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetDepositPrice(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.service.UpdateDepositPrice(r.Context(), caller, req.Price); err != nil {
		h.writeLedgerError(w, "set deposit price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegisterDiscountCode(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req discountCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	code, err := h.service.RegisterCode(r.Context(), caller, req.Code, ledger.DiscountTerms{
		Value:            req.Value,
		IsPercentage:     req.IsPercentage,
		MaxUses:          req.MaxUses,
		AppliesToDeposit: req.AppliesToDeposit,
		AppliesToBalance: req.AppliesToBalance,
	})
	if err != nil {
		h.writeLedgerError(w, "register discount code", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, code)
}

func (h *Handler) handleDeactivateDiscountCode(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.service.DeactivateCode(r.Context(), caller, chi.URLParam(r, "code")); err != nil {
		h.writeLedgerError(w, "deactivate discount code", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetFunds(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.Funds())
}

func (h *Handler) handleWithdrawFunds(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.service.Withdraw(r.Context(), caller, req.Amount); err != nil {
		h.writeLedgerError(w, "withdraw funds", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"withdrawn": req.Amount})
}

func (h *Handler) handleWithdrawSlashedFunds(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	amount, err := h.service.WithdrawSlashed(r.Context(), caller)
	if err != nil {
		h.writeLedgerError(w, "withdraw slashed funds", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"withdrawn": amount})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.service.SetPaused(r.Context(), caller, paused); err != nil {
		h.writeLedgerError(w, "set paused", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (h *Handler) handleGrantAdmin(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, true)
}

func (h *Handler) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, false)
}

func (h *Handler) setAdmin(w http.ResponseWriter, r *http.Request, admin bool) {
	caller, _ := CallerFromContext(r.Context())
	account, ok := addressParam(w, r)
	if !ok {
		return
	}
	if err := h.service.SetAdmin(r.Context(), caller, account, admin); err != nil {
		h.writeLedgerError(w, "set admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- internal endpoints ---

func (h *Handler) handleRunSlashingSweep(w http.ResponseWriter, r *http.Request) {
	result := h.jobs.SlashOverdueParticipants(r.Context())
	respondWithJSON(w, http.StatusOK, result)
}

// --- helpers ---

func batchIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil || id == 0 {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid batch ID")
		return 0, false
	}
	return id, true
}

func addressParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		respondWithError(w, http.StatusBadRequest, "InvalidRequest", "Invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func statusForKind(kind ledger.Kind) int {
	switch kind {
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindState:
		return http.StatusConflict
	case ledger.KindTemporal:
		return http.StatusUnprocessableEntity
	case ledger.KindResource:
		return http.StatusPaymentRequired
	case ledger.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, operation string, err error) {
	kind := ledger.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("ledger operation failed", "operation", operation, "error", err)
		respondWithError(w, status, ledger.CodeOf(err), "internal error")
		return
	}
	respondWithError(w, status, ledger.CodeOf(err), err.Error())
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, map[string]string{"error": message, "code": code})
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}
