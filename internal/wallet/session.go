package wallet

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/pkg/apex"
	"github.com/betbot/apexwallet/pkg/cache"
	"github.com/betbot/apexwallet/pkg/logger"
)

// Venue is the slice of the APEX gateway the wallet uses. *apex.Client and
// *apex.MockClient implement it.
type Venue interface {
	GetProducts(ctx context.Context, omsID int) ([]apex.Product, error)
	GetInstruments(ctx context.Context, omsID int) ([]apex.Instrument, error)
	GetAccountPositions(ctx context.Context, omsID, accountID int) ([]apex.Position, error)
	GetUserConfig(ctx context.Context, userID int) ([]apex.UserConfigEntry, error)
	GetWithdrawFormTemplateTypes(ctx context.Context, omsID, accountID, productID int) ([]apex.TemplateType, error)
	CreateWithdrawTicket(ctx context.Context, req apex.CreateWithdrawTicketRequest) (apex.CreateWithdrawTicketResponse, error)
	GetWithdrawTicket(ctx context.Context, omsID, accountID int, requestCode string) (apex.WithdrawTicket, error)
	GetWithdrawTickets(ctx context.Context, omsID, accountID int) ([]apex.WithdrawTicket, error)
	GetDepositInfo(ctx context.Context, req apex.DepositInfoRequest) (apex.DepositInfoResponse, error)
	Level1Snapshot(ctx context.Context, omsID, instrumentID int) (apex.Level1, error)
	Alive() bool
	Close() error
}

// Account is one configured venue login.
type Account struct {
	ID string
	apex.Credentials
}

// Fingerprint identifies the credentials a session was opened with.
func (a Account) Fingerprint() string {
	return a.ID + "|" + strconv.Itoa(a.UserID) + "|" + a.APIKey
}

// Session is an authenticated venue connection for one account. It does not
// change after creation.
type Session struct {
	Account   string
	AccountID int
	UserID    int
	OMSID     int
	Venue     Venue

	key string
}

// Dialer opens and authenticates a venue connection for an account.
type Dialer interface {
	Dial(ctx context.Context, acct Account) (Venue, apex.Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, acct Account) (Venue, apex.Session, error)

func (f DialerFunc) Dial(ctx context.Context, acct Account) (Venue, apex.Session, error) {
	return f(ctx, acct)
}

// Sessions caches one Session per account fingerprint for the life of the
// process. Concurrent first calls for the same account share one login.
type Sessions struct {
	dialer Dialer
	loader *cache.Loader[string, *Session]
	log    *logrus.Entry

	mu   sync.Mutex
	open map[string]*Session
}

func NewSessions(d Dialer) *Sessions {
	return &Sessions{
		dialer: d,
		loader: cache.NewLoader[string, *Session](0),
		log:    logger.WithField("component", "wallet.sessions"),
		open:   make(map[string]*Session),
	}
}

// Get returns the cached session for acct, logging in on first use. A failed
// login is not cached, and a session whose connection is gone is replaced.
func (s *Sessions) Get(ctx context.Context, acct Account) (*Session, error) {
	key := acct.Fingerprint()
	if sess, ok := s.loader.Peek(key); ok && !sess.Venue.Alive() {
		s.log.WithField("account", acct.ID).Warn("venue connection lost, logging in again")
		s.Drop(sess)
	}
	return s.loader.Get(ctx, key, func(ctx context.Context) (*Session, error) {
		venue, info, err := s.dialer.Dial(ctx, acct)
		if err != nil {
			metrics.SessionLoginErrors.Add(1)
			if errors.Is(err, apex.ErrNotAuthenticated) {
				return nil, errors.Wrapf(ErrAuthentication, "account %s: %v", acct.ID, err)
			}
			return nil, errors.Wrapf(err, "open session for account %s", acct.ID)
		}
		metrics.SessionLogins.Add(1)

		sess := &Session{
			Account:   acct.ID,
			AccountID: info.User.AccountId,
			UserID:    info.User.UserId,
			OMSID:     info.User.OMSId,
			Venue:     venue,
			key:       key,
		}
		s.mu.Lock()
		s.open[key] = sess
		s.mu.Unlock()

		s.log.WithFields(logrus.Fields{
			"account":    acct.ID,
			"account_id": sess.AccountID,
			"oms_id":     sess.OMSID,
		}).Info("venue session opened")
		return sess, nil
	})
}

// Drop closes sess and forgets it so the next Get logs in again. It does
// nothing if sess was already replaced.
func (s *Sessions) Drop(sess *Session) {
	s.mu.Lock()
	if s.open[sess.key] != sess {
		s.mu.Unlock()
		return
	}
	delete(s.open, sess.key)
	s.loader.Forget(sess.key)
	s.mu.Unlock()
	_ = sess.Venue.Close()
}

// Close closes every open session.
func (s *Sessions) Close() error {
	s.mu.Lock()
	open := s.open
	s.open = make(map[string]*Session)
	s.mu.Unlock()

	var first error
	for key, sess := range open {
		s.loader.Forget(key)
		if err := sess.Venue.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
