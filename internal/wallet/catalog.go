package wallet

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/apexwallet/pkg/apex"
	"github.com/betbot/apexwallet/pkg/cache"
)

// Market resolves product and instrument ids and reads quotes. Catalogs are
// fetched once per OMS and kept for the life of the process.
type Market struct {
	products    *cache.Loader[int, []apex.Product]
	instruments *cache.Loader[int, []apex.Instrument]

	// quoteTimeout bounds a level-1 read; zero leaves it to the caller.
	quoteTimeout time.Duration
}

func NewMarket() *Market {
	return &Market{
		products:    cache.NewLoader[int, []apex.Product](0),
		instruments: cache.NewLoader[int, []apex.Instrument](0),
	}
}

// ProductID returns the id of the product named symbol (e.g. "BTC", "USD").
func (m *Market) ProductID(ctx context.Context, s *Session, symbol string) (int, error) {
	products, err := m.products.Get(ctx, s.OMSID, func(ctx context.Context) ([]apex.Product, error) {
		return s.Venue.GetProducts(ctx, s.OMSID)
	})
	if err != nil {
		return 0, errors.Wrap(err, "load product catalog")
	}
	for _, p := range products {
		if p.Product == symbol {
			return p.ProductId, nil
		}
	}
	return 0, errors.Wrapf(ErrProductNotFound, "%s", symbol)
}

// InstrumentID returns the id of the crypto/fiat pair, whose symbol is the
// two codes concatenated.
func (m *Market) InstrumentID(ctx context.Context, s *Session, cryptoCode, fiatCode string) (int, error) {
	instruments, err := m.instruments.Get(ctx, s.OMSID, func(ctx context.Context) ([]apex.Instrument, error) {
		return s.Venue.GetInstruments(ctx, s.OMSID)
	})
	if err != nil {
		return 0, errors.Wrap(err, "load instrument catalog")
	}
	symbol := cryptoCode + fiatCode
	for _, inst := range instruments {
		if inst.Symbol == symbol {
			return inst.InstrumentId, nil
		}
	}
	return 0, errors.Wrapf(ErrInstrumentNotFound, "%s", symbol)
}
