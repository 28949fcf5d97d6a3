package wallet

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/pkg/apex"
	"github.com/betbot/apexwallet/pkg/logger"
)

// TwoFactorConfigKey is the user config flag that must be "true" before a
// withdrawal is submitted.
const TwoFactorConfigKey = "UseGoogle2FA"

// evmCoins take 0x-prefixed hex addresses.
var evmCoins = map[string]bool{"ETH": true, "REP": true}

// Withdrawal is the venue's acknowledgement of a submitted withdrawal.
type Withdrawal struct {
	RequestCode  string
	Fee          decimal.Decimal
	TemplateType string
}

// Withdrawer builds and submits withdrawal tickets.
type Withdrawer struct {
	market          *Market
	supported       map[string]bool
	validateAddress bool
	log             *logrus.Entry
}

func NewWithdrawer(market *Market, supportedCoins []string, validateAddresses bool) *Withdrawer {
	supported := make(map[string]bool, len(supportedCoins))
	for _, c := range supportedCoins {
		supported[c] = true
	}
	return &Withdrawer{
		market:          market,
		supported:       supported,
		validateAddress: validateAddresses,
		log:             logger.WithField("component", "wallet.withdrawal"),
	}
}

// CheckCryptoCode fails for coins outside the allow-list. It does no I/O.
func (w *Withdrawer) CheckCryptoCode(cryptoCode string) error {
	if !w.supported[cryptoCode] {
		return errors.Wrapf(ErrUnsupportedCrypto, "%s", cryptoCode)
	}
	return nil
}

// ValidateAddress checks the destination format where it is known.
func (w *Withdrawer) ValidateAddress(cryptoCode, address string) error {
	if strings.TrimSpace(address) == "" || strings.ContainsAny(address, " \t\r\n") {
		return errors.Wrapf(ErrInvalidAddress, "%q", address)
	}
	if w.validateAddress && evmCoins[cryptoCode] && !common.IsHexAddress(address) {
		return errors.Wrapf(ErrInvalidAddress, "%s address %q", cryptoCode, address)
	}
	return nil
}

// CheckTwoFactor fails unless the user's UseGoogle2FA flag is present and not
// "false".
func CheckTwoFactor(ctx context.Context, s *Session) error {
	entries, err := s.Venue.GetUserConfig(ctx, s.UserID)
	if err != nil {
		return errors.Wrap(err, "get user config")
	}
	for _, e := range entries {
		if e.Key != TwoFactorConfigKey {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(e.Value), "false") {
			return ErrTwoFactorRequired
		}
		return nil
	}
	return ErrTwoFactorRequired
}

// TemplateType returns the first withdrawal template the venue offers for
// cryptoCode.
func (w *Withdrawer) TemplateType(ctx context.Context, s *Session, productID int, cryptoCode string) (string, error) {
	types, err := s.Venue.GetWithdrawFormTemplateTypes(ctx, s.OMSID, s.AccountID, productID)
	if err != nil {
		return "", errors.Wrap(err, "get withdraw template types")
	}
	if len(types) == 0 {
		return "", errors.Wrapf(ErrNoWithdrawProvider, "%s", cryptoCode)
	}
	return types[0].TemplateName, nil
}

// Initiate submits one withdrawal of amount cryptoCode to address and returns
// the venue's request code. It is never retried.
func (w *Withdrawer) Initiate(ctx context.Context, s *Session, address string, amount decimal.Decimal, cryptoCode string) (Withdrawal, error) {
	if err := w.CheckCryptoCode(cryptoCode); err != nil {
		return Withdrawal{}, err
	}
	if !amount.IsPositive() {
		return Withdrawal{}, errors.Wrapf(ErrInvalidAmount, "%s", amount)
	}
	if err := w.ValidateAddress(cryptoCode, address); err != nil {
		return Withdrawal{}, err
	}
	if err := CheckTwoFactor(ctx, s); err != nil {
		return Withdrawal{}, err
	}

	productID, err := w.market.ProductID(ctx, s, cryptoCode)
	if err != nil {
		return Withdrawal{}, err
	}
	templateType, err := w.TemplateType(ctx, s, productID, cryptoCode)
	if err != nil {
		return Withdrawal{}, err
	}

	req := apex.CreateWithdrawTicketRequest{
		OMSId:     s.OMSID,
		AccountId: s.AccountID,
		ProductId: productID,
		Amount:    amount,
		TemplateForm: apex.Embedded[apex.TemplateForm]{Value: apex.TemplateForm{
			ExternalAddress: address,
			TemplateType:    templateType,
		}},
		TemplateType: templateType,
	}
	resp, err := s.Venue.CreateWithdrawTicket(ctx, req)
	if err != nil {
		return Withdrawal{}, errors.Wrap(err, "create withdraw ticket")
	}

	log := w.log.WithFields(logrus.Fields{
		"account": s.Account,
		"coin":    cryptoCode,
		"amount":  amount.String(),
	})
	if !resp.Result {
		metrics.WithdrawalsRejected.Add(1)
		detail := resp.Detail
		if detail == "" {
			detail = resp.ErrorMsg
		}
		log.WithField("detail", detail).Warn("withdrawal rejected")
		return Withdrawal{}, &VenueRejection{Op: "withdrawal", Detail: detail}
	}
	if resp.Detail == "" {
		metrics.WithdrawalsRejected.Add(1)
		return Withdrawal{}, &VenueRejection{Op: "withdrawal", Detail: "venue returned no request code"}
	}

	metrics.WithdrawalsSent.Add(1)
	log.WithFields(logrus.Fields{
		"request_code": resp.Detail,
		"template":     templateType,
		"fee":          resp.FeeAmt.String(),
	}).Info("withdrawal submitted")

	return Withdrawal{RequestCode: resp.Detail, Fee: resp.FeeAmt, TemplateType: templateType}, nil
}
