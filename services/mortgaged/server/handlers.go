package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lendchain/native/mortgage"
	"lendchain/native/rate"
	"lendchain/services/mortgaged/journal"
	mortgagedmw "lendchain/services/mortgaged/middleware"
)

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func caller(r *http.Request) [20]byte {
	addr, _ := mortgagedmw.Caller(r.Context())
	return addr
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	collateral, err := req.Collateral.toCollateral()
	if err != nil {
		s.writeError(w, err)
		return
	}
	principal, err := parseAmount("principal", req.Principal)
	if err != nil {
		s.writeError(w, err)
		return
	}
	repayment, err := parseAmount("repayment", req.Repayment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	currency, err := parseAccount("currency", req.Currency)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var view mortgageView
	err = s.execute(r.Context(), "borrow", func() error {
		id, err := s.rt.Engine.Borrow(caller(r), mortgage.BorrowRequest{
			Collateral: collateral,
			Principal:  principal,
			Repayment:  repayment,
			Currency:   currency,
			Duration:   req.Duration,
		})
		if err != nil {
			return err
		}
		view, err = s.loadView(id)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("mortgage created", slog.Uint64("mortgage", view.ID))
	writeJSON(w, http.StatusCreated, view)
}

// transition runs op on the mortgage in the path and answers with its
// updated view.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, operation string, op func(id uint64) error) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var view mortgageView
	err = s.execute(r.Context(), operation, func() error {
		if err := op(id); err != nil {
			return err
		}
		view, err = s.loadView(id)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "cancel", func(id uint64) error {
		return s.rt.Engine.Cancel(caller(r), id)
	})
}

func (s *Server) foreclose(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "foreclose", func(id uint64) error {
		return s.rt.Engine.Foreclose(caller(r), id)
	})
}

func (s *Server) transferClaim(w http.ResponseWriter, r *http.Request) {
	var req claimTransferRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.transition(w, r, "transfer_claim", func(id uint64) error {
		return s.rt.Engine.TransferClaim(caller(r), id, to)
	})
}

func (s *Server) lend(w http.ResponseWriter, r *http.Request) {
	s.valueTransition(w, r, "lend", s.rt.Engine.Lend, s.rt.Engine.SafeLend)
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	s.valueTransition(w, r, "repay", s.rt.Engine.Repay, s.rt.Engine.SafeRepay)
}

type valueOp func(caller [20]byte, id uint64, value *big.Int) error

type anchoredValueOp func(caller [20]byte, id uint64, anchor [32]byte, value *big.Int) error

// valueTransition dispatches to the anchored variant when the request
// carries an anchor.
func (s *Server) valueTransition(w http.ResponseWriter, r *http.Request, operation string, plain valueOp, anchored anchoredValueOp) {
	var req valueRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var anchor *[32]byte
	if strings.TrimSpace(req.Anchor) != "" {
		parsed, err := parseAnchor(req.Anchor)
		if err != nil {
			s.writeError(w, err)
			return
		}
		anchor = &parsed
	}
	s.transition(w, r, operation, func(id uint64) error {
		var err error
		if anchor != nil {
			err = anchored(caller(r), id, *anchor, value)
		} else {
			err = plain(caller(r), id, value)
		}
		if err != nil || operation != "lend" {
			return err
		}
		m, err := s.rt.Engine.Mortgage(id)
		if err != nil {
			return err
		}
		s.metrics.RecordFee(mortgage.CurrencyString(m.Currency), m.Fee)
		return nil
	})
}

func (s *Server) updateFeeRate(w http.ResponseWriter, r *http.Request) {
	var req feeRateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	parsed, err := rate.Parse(req.Rate)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", mortgage.ErrInvalidRate, err))
		return
	}
	s.admin(w, r, "update_fee_rate", func() error {
		return s.rt.Engine.UpdateFeeRate(parsed, req.Approval)
	})
}

func (s *Server) updateBaseURI(w http.ResponseWriter, r *http.Request) {
	var req baseURIRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.admin(w, r, "update_base_uri", func() error {
		return s.rt.Engine.UpdateBaseURI(req.URI, req.Approval)
	})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.admin(w, r, "pause", func() error { return s.rt.Engine.Pause(req.Approval) })
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.admin(w, r, "unpause", func() error { return s.rt.Engine.Unpause(req.Approval) })
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request, operation string, op func() error) {
	var view moduleView
	err := s.execute(r.Context(), operation, func() error {
		if err := op(); err != nil {
			return err
		}
		var err error
		view, err = s.moduleView()
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("admin action applied", slog.String("action", operation), slog.Uint64("nonce", view.AdminNonce))
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) moduleView() (moduleView, error) {
	engine := s.rt.Engine
	feeRate, err := engine.FeeRate()
	if err != nil {
		return moduleView{}, err
	}
	count, err := engine.MortgageNumber()
	if err != nil {
		return moduleView{}, err
	}
	nonce, err := engine.AdminNonce()
	if err != nil {
		return moduleView{}, err
	}
	baseURI, err := engine.BaseURI()
	if err != nil {
		return moduleView{}, err
	}
	return moduleView{
		FeeRate:        feeRate.String(),
		MortgageNumber: count,
		Paused:         engine.IsPaused(mortgage.ModuleName),
		AdminNonce:     nonce,
		BaseURI:        baseURI,
		FeeReceiver:    accountText(engine.FeeReceiver()),
	}, nil
}

func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	var view moduleView
	err := s.read(func() error {
		var err error
		view, err = s.moduleView()
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getMortgage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var view mortgageView
	err = s.read(func() error {
		var err error
		view, err = s.loadView(id)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	currency, err := parseAccount("currency", r.URL.Query().Get("currency"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var view balanceView
	err = s.read(func() error {
		var (
			balance *big.Int
			err     error
		)
		if currency == ([20]byte{}) {
			balance, err = s.rt.Native.BalanceOf(account)
		} else {
			balance, err = s.rt.Tokens.BalanceOf(currency, account)
		}
		if err != nil {
			return err
		}
		view = balanceView{
			Account:  accountText(account),
			Currency: mortgage.CurrencyString(currency),
			Balance:  balance.String(),
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func eventFilter(r *http.Request) (journal.Filter, error) {
	query := r.URL.Query()
	filter := journal.Filter{Type: query.Get("type")}
	if raw := query.Get("mortgage"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return filter, err
		}
		filter.MortgageID = &id
	}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("%w: after", errBadRequest)
		}
		filter.After = after
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("%w: limit", errBadRequest)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}
