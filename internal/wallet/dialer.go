package wallet

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/apexwallet/pkg/apex"
	"github.com/betbot/apexwallet/pkg/config"
	"github.com/betbot/apexwallet/pkg/ratelimit"
)

const wsPingInterval = 30 * time.Second

// APEXDialer opens real gateway connections, over a websocket or the REST
// surface depending on configuration.
type APEXDialer struct {
	cfg config.VenueConfig
}

func NewAPEXDialer(cfg config.VenueConfig) *APEXDialer {
	return &APEXDialer{cfg: cfg}
}

// Dial connects and logs acct in. The connection is closed again if the
// login fails.
func (d *APEXDialer) Dial(ctx context.Context, acct Account) (Venue, apex.Session, error) {
	timeout := d.cfg.RequestTimeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tr apex.Transport
	switch d.cfg.Transport {
	case config.TransportHTTP:
		tr = apex.NewHTTPTransport(d.cfg.HTTPURL, timeout)
	default:
		ws, err := apex.DialWS(ctx, apex.WSConfig{URL: d.cfg.URL, PingInterval: wsPingInterval})
		if err != nil {
			return nil, apex.Session{}, err
		}
		tr = ws
	}

	client := apex.NewClient(tr, apex.WithRateLimiter(ratelimit.New(d.cfg.RateLimit)))
	sess, err := client.Login(ctx, acct.Credentials)
	if err != nil {
		_ = client.Close()
		return nil, apex.Session{}, errors.Wrap(err, "login")
	}
	return client, sess, nil
}
