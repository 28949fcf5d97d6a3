package wallet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/apexwallet/pkg/apex"
)

// Positions fetches the account's current balances. They are never cached.
func Positions(ctx context.Context, s *Session) ([]apex.Position, error) {
	ps, err := s.Venue.GetAccountPositions(ctx, s.OMSID, s.AccountID)
	if err != nil {
		return nil, errors.Wrap(err, "get account positions")
	}
	return ps, nil
}

// FindPosition picks the position for symbol.
func FindPosition(positions []apex.Position, symbol string) (apex.Position, error) {
	for _, p := range positions {
		if p.ProductSymbol == symbol {
			return p, nil
		}
	}
	return apex.Position{}, errors.Wrapf(ErrPositionNotFound, "%s", symbol)
}

// PositionFor fetches positions and returns the one for symbol.
func PositionFor(ctx context.Context, s *Session, symbol string) (apex.Position, error) {
	ps, err := Positions(ctx, s)
	if err != nil {
		return apex.Position{}, err
	}
	return FindPosition(ps, symbol)
}

// Available is Amount minus Hold, floored at zero.
func Available(p apex.Position) decimal.Decimal {
	return decimal.Max(decimal.Zero, p.Amount.Sub(p.Hold))
}

// Spendable is Amount minus Hold exactly as the venue reports it; it can be
// negative on a degenerate position.
func Spendable(p apex.Position) decimal.Decimal {
	return p.Amount.Sub(p.Hold)
}
