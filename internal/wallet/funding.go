package wallet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/pkg/apex"
)

// FundingSnapshot pairs a fresh deposit address with the coin's raw balance.
// ConfirmedBalance is the venue Amount, which includes PendingBalance (Hold);
// it is not the floored available balance used for affordability.
type FundingSnapshot struct {
	PendingBalance   decimal.Decimal `json:"fundingPendingBalance"`
	ConfirmedBalance decimal.Decimal `json:"fundingConfirmedBalance"`
	FundingAddress   string          `json:"fundingAddress"`
}

// NewAddress asks the venue to generate a deposit address for cryptoCode and
// returns the first one.
func (m *Market) NewAddress(ctx context.Context, s *Session, cryptoCode string) (string, error) {
	productID, err := m.ProductID(ctx, s, cryptoCode)
	if err != nil {
		return "", err
	}
	resp, err := s.Venue.GetDepositInfo(ctx, apex.DepositInfoRequest{
		OMSId:          s.OMSID,
		AccountId:      s.AccountID,
		ProductId:      productID,
		GenerateNewKey: true,
	})
	if err != nil {
		return "", errors.Wrap(err, "get deposit info")
	}
	if !resp.Result {
		return "", errors.Wrapf(ErrAddressGeneration, "%s: %s", cryptoCode, resp.ErrorMsg)
	}
	addresses := resp.Addresses()
	if len(addresses) == 0 {
		return "", errors.Wrapf(ErrAddressGeneration, "%s: no address returned", cryptoCode)
	}
	metrics.AddressesGenerated.Add(1)
	return addresses[0], nil
}

// BuildFundingSnapshot generates a deposit address and reads the coin's
// position: pending = Hold, confirmed = Amount.
func (m *Market) BuildFundingSnapshot(ctx context.Context, s *Session, cryptoCode string) (FundingSnapshot, error) {
	address, err := m.NewAddress(ctx, s, cryptoCode)
	if err != nil {
		return FundingSnapshot{}, err
	}
	pos, err := PositionFor(ctx, s, cryptoCode)
	if err != nil {
		return FundingSnapshot{}, err
	}
	return FundingSnapshot{
		PendingBalance:   pos.Hold,
		ConfirmedBalance: pos.Amount,
		FundingAddress:   address,
	}, nil
}
