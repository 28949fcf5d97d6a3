package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/apexwallet/internal/wallet"
)

func (s *Server) handleAccountsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"accounts": s.wallet.Accounts()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	coin := strings.ToUpper(strings.TrimSpace(pathParam(r, "coin")))

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadTimeout)
	defer cancel()
	bal, err := s.wallet.Balance(ctx, accountID, coin)
	if err != nil {
		s.fail(w, r, "balance", err)
		return
	}
	writeJSON(w, 200, map[string]any{"account_id": accountID, "coin": coin, "balance": bal})
}

func (s *Server) handleAffordability(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	q := r.URL.Query()
	fiat := strings.ToUpper(strings.TrimSpace(q.Get("fiat")))
	crypto := strings.ToUpper(strings.TrimSpace(q.Get("crypto")))
	if fiat == "" || crypto == "" {
		writeError(w, 400, "fiat and crypto are required")
		return
	}
	side, err := wallet.ParseSide(q.Get("side"))
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil {
		writeError(w, 400, "invalid amount")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadTimeout)
	defer cancel()
	ok, err := s.wallet.CanAfford(ctx, accountID, fiat, crypto, side, amount)
	if err != nil {
		s.fail(w, r, "affordability", err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"account_id": accountID,
		"fiat":       fiat,
		"crypto":     crypto,
		"side":       side.String(),
		"amount":     amount,
		"affordable": ok,
	})
}

type sendCoinsRequest struct {
	Address    string          `json:"address"`
	Amount     decimal.Decimal `json:"amount"`
	CryptoCode string          `json:"crypto_code"`
}

func (s *Server) handleSendCoins(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	var req sendCoinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	req.CryptoCode = strings.ToUpper(strings.TrimSpace(req.CryptoCode))

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SendTimeout)
	defer cancel()
	res, err := s.wallet.SendCoins(ctx, accountID, req.Address, req.Amount, req.CryptoCode)
	if err != nil {
		if res.RequestCode != "" {
			// The ticket exists; hand back its code so the caller resolves
			// instead of resubmitting.
			s.log.WithField("request_code", res.RequestCode).Warnf("withdrawal submitted, tx id unknown: %v", err)
			writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "result": res})
			return
		}
		s.fail(w, r, "send_coins", err)
		return
	}
	status := 200
	if res.Pending {
		status = 202
	}
	writeJSON(w, status, res)
}

func (s *Server) handleWithdrawalsList(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	items, err := s.wallet.Withdrawals(r.Context(), accountID, limit)
	if err != nil {
		s.fail(w, r, "withdrawals", err)
		return
	}
	writeJSON(w, 200, map[string]any{"account_id": accountID, "withdrawals": items})
}

// handleResolve looks up one request code when given, otherwise every
// recorded withdrawal still missing its transaction id.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SendTimeout)
	defer cancel()

	if code := strings.TrimSpace(r.URL.Query().Get("request_code")); code != "" {
		txID, found, err := s.wallet.ResolveTransactionID(ctx, accountID, code)
		if err != nil {
			s.fail(w, r, "resolve", err)
			return
		}
		writeJSON(w, 200, map[string]any{"request_code": code, "txid": txID, "found": found})
		return
	}

	resolved, err := s.wallet.ResolvePending(ctx, accountID)
	if err != nil {
		s.fail(w, r, "resolve_pending", err)
		return
	}
	writeJSON(w, 200, map[string]any{"account_id": accountID, "resolved": resolved})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, 400, "address is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadTimeout)
	defer cancel()
	st, err := s.wallet.GetStatus(ctx, accountID, address)
	if err != nil {
		s.fail(w, r, "status", err)
		return
	}
	writeJSON(w, 200, map[string]any{"address": address, "status": st})
}

func (s *Server) handleNewAddress(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	coin := strings.ToUpper(strings.TrimSpace(pathParam(r, "coin")))
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadTimeout)
	defer cancel()
	addr, err := s.wallet.NewAddress(ctx, accountID, coin)
	if err != nil {
		s.fail(w, r, "new_address", err)
		return
	}
	writeJSON(w, 200, map[string]any{"coin": coin, "address": addr})
}

func (s *Server) handleFunding(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	coin := strings.ToUpper(strings.TrimSpace(pathParam(r, "coin")))
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadTimeout)
	defer cancel()
	snap, err := s.wallet.NewFunding(ctx, accountID, coin)
	if err != nil {
		s.fail(w, r, "funding", err)
		return
	}
	writeJSON(w, 200, snap)
}
