package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/pkg/logger"
)

// Sweeper resolves, in the background, recorded withdrawals that ran out of
// the synchronous resolver budget. It polls only while armed: at start, and
// after SendCoins leaves a withdrawal pending. A sweep that finds nothing
// left pending disarms it.
type Sweeper struct {
	wallet   *Wallet
	interval time.Duration
	log      *logrus.Entry

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper returns a sweeper ticking every interval (one minute if unset).
func (w *Wallet) NewSweeper(interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		wallet:   w,
		interval: interval,
		log:      logger.WithField("component", "wallet.sweeper"),
		done:     make(chan struct{}),
	}
}

// Start launches the loop once; later calls do nothing.
func (s *Sweeper) Start(parent context.Context) {
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.cancel = cancel
		go s.loop(ctx)
	})
}

// Stop ends the loop and waits for an in-progress sweep to return.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.done) })
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	armed := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wallet.pending.C():
			armed = true
		case <-ticker.C:
			if !armed {
				continue
			}
			remaining := s.SweepOnce(ctx)
			metrics.PendingWithdrawals.Set(int64(remaining))
			if remaining == 0 {
				armed = false
			}
		}
	}
}

// SweepOnce resolves pending withdrawals of every account, one lookup each,
// and returns how many are still pending. Accounts that fail count as
// pending so the next tick retries them.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	w := s.wallet
	if w.recorder == nil {
		return 0
	}
	remaining := 0
	for _, id := range w.Accounts() {
		if ctx.Err() != nil {
			return remaining + 1
		}
		log := s.log.WithField("account", id)

		pending, err := w.recorder.ListPending(ctx, id)
		if err != nil {
			log.Warnf("list pending: %v", err)
			remaining++
			continue
		}
		if len(pending) == 0 {
			continue
		}

		resolved, err := w.ResolvePending(ctx, id)
		if err != nil {
			log.Warnf("resolve pending: %v", err)
		}
		for _, r := range resolved {
			log.WithFields(logrus.Fields{
				"request_code": r.RequestCode,
				"txid":         r.TxID,
			}).Info("pending withdrawal resolved")
		}
		remaining += len(pending) - len(resolved)
	}
	return remaining
}
