// Package wallet executes withdrawals and balance checks against an APEX
// venue: affordability, withdrawal submission, transaction id resolution,
// status classification and funding snapshots.
package wallet

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/execution"
	"github.com/betbot/apexwallet/internal/store"
	"github.com/betbot/apexwallet/pkg/apex"
	"github.com/betbot/apexwallet/pkg/config"
	"github.com/betbot/apexwallet/pkg/logger"
	"github.com/betbot/apexwallet/pkg/sigchan"
)

// Recorder persists submitted withdrawals. *store.Ledger implements it.
type Recorder interface {
	Insert(ctx context.Context, w *store.Withdrawal) error
	SetTxID(ctx context.Context, requestCode, txID string) error
	Get(ctx context.Context, requestCode string) (*store.Withdrawal, error)
	ListPending(ctx context.Context, accountID string) ([]store.Withdrawal, error)
	List(ctx context.Context, accountID string, limit int) ([]store.Withdrawal, error)
}

// Config holds the wallet policy.
type Config struct {
	SupportedCoins    []string
	ResolveAttempts   int
	ResolveBaseDelay  time.Duration
	ValidateAddresses bool
	QuoteTimeout      time.Duration
}

// ConfigFrom maps the file configuration onto Config.
func ConfigFrom(c config.WalletConfig) Config {
	validate := true
	if c.ValidateAddresses != nil {
		validate = *c.ValidateAddresses
	}
	return Config{
		SupportedCoins:    c.SupportedCoins,
		ResolveAttempts:   c.Resolver.MaxAttempts,
		ResolveBaseDelay:  c.Resolver.BaseDelay.Duration,
		ValidateAddresses: validate,
		QuoteTimeout:      c.QuoteTimeout.Duration,
	}
}

// AccountsFrom builds accounts from the file configuration.
func AccountsFrom(cs []config.AccountConfig) []Account {
	out := make([]Account, 0, len(cs))
	for _, c := range cs {
		out = append(out, Account{
			ID: c.ID,
			Credentials: apex.Credentials{
				UserID:     c.UserID,
				APIKey:     c.APIKey,
				Secret:     c.Secret,
				Signature:  c.Signature,
				Nonce:      c.Nonce,
				TOTPSecret: c.TOTPSecret,
			},
		})
	}
	return out
}

// SendResult is the outcome of SendCoins. TxID is empty and Pending true when
// the venue has not assigned a transaction id within the resolver budget.
type SendResult struct {
	TxID        string          `json:"txid,omitempty"`
	Fee         decimal.Decimal `json:"fee"`
	RequestCode string          `json:"request_code"`
	Pending     bool            `json:"pending"`
}

type Option func(*Wallet)

// WithRecorder stores every submitted withdrawal in r.
func WithRecorder(r Recorder) Option {
	return func(w *Wallet) { w.recorder = r }
}

// WithWait replaces the resolver's wait, mostly for tests.
func WithWait(wait WaitFunc) Option {
	return func(w *Wallet) { w.resolver.Wait = wait }
}

// Wallet is the account-facing surface.
type Wallet struct {
	accounts   map[string]Account
	sessions   *Sessions
	market     *Market
	withdrawer *Withdrawer
	resolver   *Resolver
	recorder   Recorder
	inflight   *execution.InFlight
	pending    *sigchan.Chan // emitted when a withdrawal is left without a tx id
	log        *logrus.Entry
}

func New(cfg Config, accounts []Account, sessions *Sessions, opts ...Option) *Wallet {
	coins := cfg.SupportedCoins
	if len(coins) == 0 {
		coins = config.DefaultSupportedCoins
	}
	market := NewMarket()
	market.quoteTimeout = cfg.QuoteTimeout
	w := &Wallet{
		accounts:   make(map[string]Account, len(accounts)),
		sessions:   sessions,
		market:     market,
		withdrawer: NewWithdrawer(market, coins, cfg.ValidateAddresses),
		resolver:   NewResolver(cfg.ResolveAttempts, cfg.ResolveBaseDelay),
		inflight:   execution.NewInFlight(0, 0),
		pending:    sigchan.New(1),
		log:        logger.WithField("component", "wallet"),
	}
	for _, a := range accounts {
		w.accounts[a.ID] = a
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Close closes all venue sessions.
func (w *Wallet) Close() error {
	return w.sessions.Close()
}

// Accounts lists the configured account ids in order.
func (w *Wallet) Accounts() []string {
	ids := make([]string, 0, len(w.accounts))
	for id := range w.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *Wallet) session(ctx context.Context, accountID string) (*Session, error) {
	acct, ok := w.accounts[accountID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "%s", accountID)
	}
	return w.sessions.Get(ctx, acct)
}

// Balance returns Amount - Hold for coin as reported by the venue.
func (w *Wallet) Balance(ctx context.Context, accountID, coin string) (decimal.Decimal, error) {
	if err := w.withdrawer.CheckCryptoCode(coin); err != nil {
		return decimal.Zero, err
	}
	s, err := w.session(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	pos, err := PositionFor(ctx, s, coin)
	if err != nil {
		return decimal.Zero, w.observe(s, err)
	}
	return Spendable(pos), nil
}

// CanAfford reports whether accountID can trade amount of crypto on side.
func (w *Wallet) CanAfford(ctx context.Context, accountID, fiat, crypto string, side Side, amount decimal.Decimal) (bool, error) {
	s, err := w.session(ctx, accountID)
	if err != nil {
		return false, err
	}
	ok, err := w.market.CanAfford(ctx, s, fiat, crypto, side, amount)
	return ok, w.observe(s, err)
}

// SendCoins submits a withdrawal and waits, within the resolver budget, for
// its transaction id. Input and policy checks run before any venue call.
//
// If polling fails after the ticket was created, the result still carries the
// request code alongside the error so the caller can resolve it later
// instead of submitting again.
func (w *Wallet) SendCoins(ctx context.Context, accountID, address string, amount decimal.Decimal, coin string) (SendResult, error) {
	if err := w.withdrawer.CheckCryptoCode(coin); err != nil {
		return SendResult{}, err
	}
	if !amount.IsPositive() {
		return SendResult{}, errors.Wrapf(ErrInvalidAmount, "%s", amount)
	}
	if err := w.withdrawer.ValidateAddress(coin, address); err != nil {
		return SendResult{}, err
	}
	release, err := w.inflight.Acquire(withdrawalKey(accountID, coin, address, amount))
	if err != nil {
		return SendResult{}, err
	}
	defer release()

	s, err := w.session(ctx, accountID)
	if err != nil {
		return SendResult{}, err
	}

	wd, err := w.withdrawer.Initiate(ctx, s, address, amount, coin)
	if err != nil {
		return SendResult{}, w.observe(s, err)
	}
	result := SendResult{Fee: wd.Fee, RequestCode: wd.RequestCode, Pending: true}
	w.record(ctx, &store.Withdrawal{
		AccountID:   accountID,
		CryptoCode:  coin,
		Address:     address,
		Amount:      amount,
		Fee:         wd.Fee,
		RequestCode: wd.RequestCode,
	})

	txID, found, err := w.resolver.Resolve(ctx, s, wd.RequestCode)
	if err != nil {
		w.pending.Emit()
		return result, errors.Wrapf(w.observe(s, err), "resolve transaction id for %s", wd.RequestCode)
	}
	if !found {
		w.pending.Emit()
		return result, nil
	}
	result.TxID, result.Pending = txID, false
	w.recordTxID(ctx, wd.RequestCode, txID)
	return result, nil
}

func withdrawalKey(accountID, coin, address string, amount decimal.Decimal) string {
	return accountID + "|" + coin + "|" + address + "|" + amount.String()
}

// ResolveTransactionID returns the tx id already recorded for requestCode, or
// polls the ticket with the resolver policy. It never submits anything.
func (w *Wallet) ResolveTransactionID(ctx context.Context, accountID, requestCode string) (string, bool, error) {
	if _, ok := w.accounts[accountID]; !ok {
		return "", false, errors.Wrapf(ErrUnknownAccount, "%s", accountID)
	}
	if txID := w.recordedTxID(ctx, accountID, requestCode); txID != "" {
		return txID, true, nil
	}
	s, err := w.session(ctx, accountID)
	if err != nil {
		return "", false, err
	}
	txID, found, err := w.resolver.Resolve(ctx, s, requestCode)
	if err == nil && found {
		w.recordTxID(ctx, requestCode, txID)
	}
	return txID, found, w.observe(s, err)
}

// ResolvePending checks every recorded withdrawal of accountID that has no
// transaction id yet, once each, and returns the ones resolved now.
func (w *Wallet) ResolvePending(ctx context.Context, accountID string) ([]store.Withdrawal, error) {
	if w.recorder == nil {
		return nil, nil
	}
	s, err := w.session(ctx, accountID)
	if err != nil {
		return nil, err
	}
	pending, err := w.recorder.ListPending(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list pending withdrawals")
	}

	once := &Resolver{MaxAttempts: 1, BaseDelay: w.resolver.BaseDelay, Wait: w.resolver.Wait}
	var resolved []store.Withdrawal
	for _, p := range pending {
		txID, found, err := once.Resolve(ctx, s, p.RequestCode)
		if err != nil {
			return resolved, w.observe(s, err)
		}
		if !found {
			continue
		}
		w.recordTxID(ctx, p.RequestCode, txID)
		p.TxID = txID
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// Withdrawals lists recorded withdrawals, newest first.
func (w *Wallet) Withdrawals(ctx context.Context, accountID string, limit int) ([]store.Withdrawal, error) {
	if _, ok := w.accounts[accountID]; !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "%s", accountID)
	}
	if w.recorder == nil {
		return nil, nil
	}
	return w.recorder.List(ctx, accountID, limit)
}

// GetStatus classifies the latest withdrawal to address.
func (w *Wallet) GetStatus(ctx context.Context, accountID, address string) (Status, error) {
	s, err := w.session(ctx, accountID)
	if err != nil {
		return "", err
	}
	st, err := ClassifyStatus(ctx, s, address)
	return st, w.observe(s, err)
}

// NewAddress generates a deposit address for coin.
func (w *Wallet) NewAddress(ctx context.Context, accountID, coin string) (string, error) {
	if err := w.withdrawer.CheckCryptoCode(coin); err != nil {
		return "", err
	}
	s, err := w.session(ctx, accountID)
	if err != nil {
		return "", err
	}
	addr, err := w.market.NewAddress(ctx, s, coin)
	return addr, w.observe(s, err)
}

// NewFunding generates a deposit address and reports coin's raw balances.
func (w *Wallet) NewFunding(ctx context.Context, accountID, coin string) (FundingSnapshot, error) {
	if err := w.withdrawer.CheckCryptoCode(coin); err != nil {
		return FundingSnapshot{}, err
	}
	s, err := w.session(ctx, accountID)
	if err != nil {
		return FundingSnapshot{}, err
	}
	snap, err := w.market.BuildFundingSnapshot(ctx, s, coin)
	return snap, w.observe(s, err)
}

// observe drops s when err shows its connection is gone, so the next call
// logs in again. It returns err unchanged.
func (w *Wallet) observe(s *Session, err error) error {
	if err != nil && errors.Is(err, apex.ErrClosed) {
		w.log.WithField("account", s.Account).Warnf("venue connection lost: %v", err)
		w.sessions.Drop(s)
	}
	return err
}

func (w *Wallet) record(ctx context.Context, wd *store.Withdrawal) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.Insert(context.WithoutCancel(ctx), wd); err != nil {
		w.log.WithField("request_code", wd.RequestCode).Errorf("record withdrawal: %v", err)
	}
}

// recordedTxID is the tx id the ledger holds for accountID's requestCode, or
// "" if there is none yet.
func (w *Wallet) recordedTxID(ctx context.Context, accountID, requestCode string) string {
	if w.recorder == nil {
		return ""
	}
	rec, err := w.recorder.Get(ctx, requestCode)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			w.log.WithField("request_code", requestCode).Warnf("read ledger: %v", err)
		}
		return ""
	}
	if rec.AccountID != accountID {
		return ""
	}
	return rec.TxID
}

func (w *Wallet) recordTxID(ctx context.Context, requestCode, txID string) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.SetTxID(context.WithoutCancel(ctx), requestCode, txID); err != nil {
		w.log.WithField("request_code", requestCode).Warnf("record tx id: %v", err)
	}
}
