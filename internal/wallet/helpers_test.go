package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/apexwallet/pkg/apex"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestVenue() *apex.MockClient {
	m := apex.NewMockClient()
	m.Products = []apex.Product{
		{OMSId: 1, ProductId: 1, Product: "BTC"},
		{OMSId: 1, ProductId: 2, Product: "USD"},
		{OMSId: 1, ProductId: 3, Product: "ETH"},
	}
	m.Instruments = []apex.Instrument{
		{OMSId: 1, InstrumentId: 5, Symbol: "BTCUSD"},
		{OMSId: 1, InstrumentId: 6, Symbol: "ETHUSD"},
	}
	m.Positions = []apex.Position{
		{ProductSymbol: "BTC", ProductId: 1, Amount: dec("2"), Hold: dec("0.5")},
		{ProductSymbol: "USD", ProductId: 2, Amount: dec("10000"), Hold: dec("1000")},
	}
	m.UserConfig = []apex.UserConfigEntry{{Key: "UseGoogle2FA", Value: "true"}}
	m.TemplateTypes = []apex.TemplateType{{TemplateName: "ToExternalBitcoinAddress"}, {TemplateName: "Other"}}
	m.WithdrawResult = apex.CreateWithdrawTicketResponse{Result: true, Detail: "req-1", FeeAmt: dec("0.0001")}
	m.Level1 = apex.Level1{BestBid: dec("30000"), BestOffer: dec("30010")}
	return m
}

func testSession(v Venue) *Session {
	return &Session{Account: "main", AccountID: 7, UserID: 42, OMSID: 1, Venue: v}
}

func ticketWithTx(txID string) apex.WithdrawTicket {
	return apex.WithdrawTicket{
		RequestCode:                "req-1",
		WithdrawTransactionDetails: apex.Embedded[apex.TransactionDetails]{Value: apex.TransactionDetails{TxId: txID}},
	}
}

func ticketTo(address, status string, tick int64) apex.WithdrawTicket {
	return apex.WithdrawTicket{
		Status:               status,
		CreatedTimestampTick: tick,
		TemplateForm:         apex.Embedded[apex.TemplateForm]{Value: apex.TemplateForm{ExternalAddress: address}},
	}
}

// waits records resolver waits without sleeping.
type waits struct {
	mu sync.Mutex
	ds []time.Duration
}

func (w *waits) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.ds = append(w.ds, d)
	w.mu.Unlock()
	return nil
}

func (w *waits) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.ds...)
}

func staticDialer(v Venue) DialerFunc {
	return func(ctx context.Context, acct Account) (Venue, apex.Session, error) {
		return v, apex.Session{User: apex.UserInfo{UserId: acct.UserID, AccountId: 7, OMSId: 1}}, nil
	}
}

var testAccount = Account{ID: "main", Credentials: apex.Credentials{UserID: 42, APIKey: "key", Secret: "secret"}}
