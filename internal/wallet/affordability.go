package wallet

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/pkg/logger"
)

// Side is the direction of a prospective trade.
type Side int

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// ParseSide accepts "buy"/"sell" or the venue codes "0"/"1".
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy", "0":
		return SideBuy, nil
	case "sell", "1":
		return SideSell, nil
	}
	return 0, errors.Errorf("unknown side %q", v)
}

// Affordable decides a trade from already fetched balances. SELL needs
// amount <= available crypto; BUY needs amount*bestBid <= available fiat.
func Affordable(side Side, amount, bestBid decimal.Decimal, fiat, crypto decimal.Decimal) bool {
	if side == SideSell {
		return amount.LessThanOrEqual(crypto)
	}
	return amount.Mul(bestBid).LessThanOrEqual(fiat)
}

// CanAfford reports whether the account behind s can place a trade of amount
// crypto on side. It reads a fresh quote and fresh positions.
func (m *Market) CanAfford(ctx context.Context, s *Session, fiatCode, cryptoCode string, side Side, amount decimal.Decimal) (bool, error) {
	metrics.AffordabilityChecks.Add(1)

	bestBid, err := m.BestBid(ctx, s, cryptoCode, fiatCode)
	if err != nil {
		return false, err
	}

	positions, err := Positions(ctx, s)
	if err != nil {
		return false, err
	}
	fiatPos, err := FindPosition(positions, fiatCode)
	if err != nil {
		return false, err
	}
	cryptoPos, err := FindPosition(positions, cryptoCode)
	if err != nil {
		return false, err
	}

	fiatAvailable := Available(fiatPos)
	cryptoAvailable := Available(cryptoPos)
	ok := Affordable(side, amount, bestBid, fiatAvailable, cryptoAvailable)

	logger.WithFields(logrus.Fields{
		"account":          s.Account,
		"pair":             cryptoCode + fiatCode,
		"side":             side.String(),
		"amount":           amount.String(),
		"best_bid":         bestBid.String(),
		"fiat_available":   fiatAvailable.String(),
		"crypto_available": cryptoAvailable.String(),
		"affordable":       ok,
	}).Debug("affordability check")
	return ok, nil
}
