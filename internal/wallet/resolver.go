package wallet

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/pkg/config"
	"github.com/betbot/apexwallet/pkg/logger"
)

const (
	DefaultResolveAttempts = 5
	DefaultResolveBase     = time.Second
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the default WaitFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolver polls a withdrawal ticket until the venue assigns a transaction
// id. It only reads, so any number of resolvers may poll the same request
// code.
type Resolver struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Wait        WaitFunc
}

// NewResolver applies the defaults and caps maxAttempts at
// config.MaxResolveAttempts.
func NewResolver(maxAttempts int, baseDelay time.Duration) *Resolver {
	if maxAttempts <= 0 {
		maxAttempts = DefaultResolveAttempts
	}
	if maxAttempts > config.MaxResolveAttempts {
		maxAttempts = config.MaxResolveAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultResolveBase
	}
	return &Resolver{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Wait: SleepContext}
}

// Delay is the wait after the given failed attempt (1-based): 2^attempt * base.
// The exponent stops growing at config.MaxResolveAttempts.
func (r *Resolver) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > config.MaxResolveAttempts {
		attempt = config.MaxResolveAttempts
	}
	return time.Duration(1<<uint(attempt)) * r.BaseDelay
}

// Resolve fetches the ticket for requestCode up to MaxAttempts times. It
// returns the tx id and true as soon as one appears, or "" and false once the
// attempts are used up; that is not an error. A fetch error ends polling
// at once.
func (r *Resolver) Resolve(ctx context.Context, s *Session, requestCode string) (string, bool, error) {
	wait := r.Wait
	if wait == nil {
		wait = SleepContext
	}
	log := logger.WithFields(logrus.Fields{"account": s.Account, "request_code": requestCode})

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		metrics.TxLookups.Add(1)
		ticket, err := s.Venue.GetWithdrawTicket(ctx, s.OMSID, s.AccountID, requestCode)
		if err != nil {
			return "", false, errors.Wrapf(err, "get withdraw ticket %s", requestCode)
		}
		if txID := ticket.TxID(); txID != "" {
			metrics.TxResolved.Add(1)
			log.WithFields(logrus.Fields{"attempt": attempt, "tx_id": txID}).Info("transaction id resolved")
			return txID, true, nil
		}
		if attempt == r.MaxAttempts {
			break
		}

		d := r.Delay(attempt)
		log.WithFields(logrus.Fields{"attempt": attempt, "wait": d}).Debug("transaction id not assigned yet")
		if err := wait(ctx, d); err != nil {
			return "", false, err
		}
	}

	metrics.TxPending.Add(1)
	log.WithField("attempts", r.MaxAttempts).Info("transaction id still pending")
	return "", false, nil
}
