package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"lendchain/native/mortgage"
	"lendchain/services/mortgaged/journal"
)

var errBadRequest = errors.New("bad request")

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is matched in order; the first errors.Is hit wins.
var errorTable = []errorMapping{
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{journal.ErrNotConfigured, http.StatusServiceUnavailable, "journal_unavailable"},
	{mortgage.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{mortgage.ErrPaused, http.StatusServiceUnavailable, "paused"},
	{mortgage.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"},
	{mortgage.ErrReentrant, http.StatusConflict, "reentrant"},
	{mortgage.ErrBadAnchor, http.StatusConflict, "bad_anchor"},
	{mortgage.ErrInvalidMortgageID, http.StatusNotFound, "invalid_mortgage_id"},
	{mortgage.ErrInvalidCurrency, http.StatusBadRequest, "invalid_currency"},
	{mortgage.ErrInvalidPrincipal, http.StatusBadRequest, "invalid_principal"},
	{mortgage.ErrInvalidRepayment, http.StatusBadRequest, "invalid_repayment"},
	{mortgage.ErrInvalidCollateral, http.StatusBadRequest, "invalid_collateral"},
	{mortgage.ErrInvalidRate, http.StatusBadRequest, "invalid_rate"},
	{mortgage.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{mortgage.ErrInvalidRecipient, http.StatusBadRequest, "invalid_recipient"},
	{mortgage.ErrInvalidCancelling, http.StatusConflict, "invalid_cancelling"},
	{mortgage.ErrInvalidLending, http.StatusConflict, "invalid_lending"},
	{mortgage.ErrInvalidRepaying, http.StatusConflict, "invalid_repaying"},
	{mortgage.ErrInvalidForeclosing, http.StatusConflict, "invalid_foreclosing"},
	{mortgage.ErrInvalidClaimTransfer, http.StatusConflict, "invalid_claim_transfer"},
	{mortgage.ErrOverdue, http.StatusConflict, "overdue"},
	{mortgage.ErrAlreadyPaused, http.StatusConflict, "already_paused"},
	{mortgage.ErrNotPaused, http.StatusConflict, "not_paused"},
	{mortgage.ErrFailedTransfer, http.StatusUnprocessableEntity, "failed_transfer"},
	{mortgage.ErrFailedRefund, http.StatusUnprocessableEntity, "failed_refund"},
	{mortgage.ErrInsufficientValue, http.StatusUnprocessableEntity, "insufficient_value"},
}

func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
