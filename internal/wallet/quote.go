package wallet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BestBid takes a one-shot level-1 reading for the pair. Quotes are never
// cached.
func (m *Market) BestBid(ctx context.Context, s *Session, cryptoCode, fiatCode string) (decimal.Decimal, error) {
	instrumentID, err := m.InstrumentID(ctx, s, cryptoCode, fiatCode)
	if err != nil {
		return decimal.Zero, err
	}
	if m.quoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.quoteTimeout)
		defer cancel()
	}
	l1, err := s.Venue.Level1Snapshot(ctx, s.OMSID, instrumentID)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "level1 %s%s", cryptoCode, fiatCode)
	}
	return l1.BestBid, nil
}
