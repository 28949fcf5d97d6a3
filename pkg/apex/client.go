package apex

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/pkg/logger"
	"github.com/betbot/apexwallet/pkg/ratelimit"
)

const unsubscribeTimeout = 5 * time.Second

// Client exposes the gateway functions used by the wallet as typed calls.
type Client struct {
	t       Transport
	limiter ratelimit.RateLimiter
	log     *logrus.Entry
	now     func() time.Time
}

type Option func(*Client)

// WithRateLimiter makes every call wait on l first.
func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithClock overrides the clock used for login nonces and TOTP codes.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		t:       t,
		limiter: ratelimit.Unlimited{},
		log:     logger.WithField("component", "apex.client"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Alive reports whether the underlying connection can still carry calls.
// Transports without a connection of their own are always alive.
func (c *Client) Alive() bool {
	closer, ok := c.t.(Closer)
	if !ok {
		return true
	}
	select {
	case <-closer.Done():
		return false
	default:
		return true
	}
}

func (c *Client) Close() error { return c.t.Close() }

func (c *Client) raw(ctx context.Context, method string, req any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	payload, err := c.t.Call(ctx, method, req)
	c.log.WithFields(logrus.Fields{"method": method, "took": time.Since(start)}).Debug("apex call")
	return payload, err
}

// call decodes the reply into out, turning a {"result": false} body into an
// *Error.
func (c *Client) call(ctx context.Context, method string, req, out any) error {
	payload, err := c.raw(ctx, method, req)
	if err != nil {
		return err
	}
	if failure, ok := asFailure(method, payload); ok {
		return failure
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrapf(err, "decode %s reply", method)
	}
	return nil
}

// callResult decodes the reply into out as-is; out carries its own result
// flag.
func (c *Client) callResult(ctx context.Context, method string, req, out any) error {
	payload, err := c.raw(ctx, method, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrapf(err, "decode %s reply", method)
	}
	return nil
}

func (c *Client) GetProducts(ctx context.Context, omsID int) ([]Product, error) {
	var out []Product
	err := c.call(ctx, MethodGetProducts, map[string]int{"OMSId": omsID}, &out)
	return out, err
}

func (c *Client) GetInstruments(ctx context.Context, omsID int) ([]Instrument, error) {
	var out []Instrument
	err := c.call(ctx, MethodGetInstruments, map[string]int{"OMSId": omsID}, &out)
	return out, err
}

// AuthenticateUser returns the venue's answer verbatim; a refused login is
// reported through Authenticated, not through err.
func (c *Client) AuthenticateUser(ctx context.Context, req AuthenticateUserRequest) (AuthenticateUserResponse, error) {
	var out AuthenticateUserResponse
	err := c.callResult(ctx, MethodAuthenticateUser, req, &out)
	return out, err
}

func (c *Client) Authenticate2FA(ctx context.Context, code string) (Authenticate2FAResponse, error) {
	var out Authenticate2FAResponse
	err := c.callResult(ctx, MethodAuthenticate2FA, Authenticate2FARequest{Code: code}, &out)
	return out, err
}

func (c *Client) GetAccountPositions(ctx context.Context, omsID, accountID int) ([]Position, error) {
	var out []Position
	err := c.call(ctx, MethodGetAccountPositions, accountRequest{OMSId: omsID, AccountId: accountID}, &out)
	return out, err
}

func (c *Client) GetUserConfig(ctx context.Context, userID int) ([]UserConfigEntry, error) {
	var out []UserConfigEntry
	err := c.call(ctx, MethodGetUserConfig, map[string]int{"UserId": userID}, &out)
	return out, err
}

func (c *Client) GetWithdrawFormTemplateTypes(ctx context.Context, omsID, accountID, productID int) ([]TemplateType, error) {
	req := map[string]int{"OMSId": omsID, "AccountId": accountID, "ProductId": productID}
	var out templateTypesResponse
	if err := c.call(ctx, MethodGetWithdrawFormTemplateTypes, req, &out); err != nil {
		return nil, err
	}
	return out.TemplateTypes, nil
}

// CreateWithdrawTicket submits a withdrawal. A rejection comes back with
// Result false and the reason in Detail.
func (c *Client) CreateWithdrawTicket(ctx context.Context, req CreateWithdrawTicketRequest) (CreateWithdrawTicketResponse, error) {
	var out CreateWithdrawTicketResponse
	err := c.callResult(ctx, MethodCreateWithdrawTicket, req, &out)
	return out, err
}

func (c *Client) GetWithdrawTicket(ctx context.Context, omsID, accountID int, requestCode string) (WithdrawTicket, error) {
	req := struct {
		OMSId       int    `json:"OMSId"`
		AccountId   int    `json:"AccountId"`
		RequestCode string `json:"RequestCode"`
	}{omsID, accountID, requestCode}
	var out WithdrawTicket
	err := c.call(ctx, MethodGetWithdrawTicket, req, &out)
	return out, err
}

// GetWithdrawTickets lists the account's tickets. Tickets that fail to decode,
// typically over a malformed TemplateForm, are skipped.
func (c *Client) GetWithdrawTickets(ctx context.Context, omsID, accountID int) ([]WithdrawTicket, error) {
	var raw []json.RawMessage
	if err := c.call(ctx, MethodGetWithdrawTickets, accountRequest{OMSId: omsID, AccountId: accountID}, &raw); err != nil {
		return nil, err
	}
	out := make([]WithdrawTicket, 0, len(raw))
	for i, r := range raw {
		var t WithdrawTicket
		if err := json.Unmarshal(r, &t); err != nil {
			c.log.WithField("index", i).Debugf("skipping undecodable withdraw ticket: %v", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) GetDepositInfo(ctx context.Context, req DepositInfoRequest) (DepositInfoResponse, error) {
	var out DepositInfoResponse
	err := c.callResult(ctx, MethodGetDepositInfo, req, &out)
	return out, err
}

// Level1Snapshot returns one top-of-book reading for instrumentID. Over an
// event-capable transport it subscribes, takes the first matching reading
// (the subscribe reply or the first Level1UpdateEvent) and unsubscribes; the
// handler is removed on every return path. Other transports call GetLevel1.
func (c *Client) Level1Snapshot(ctx context.Context, omsID, instrumentID int) (Level1, error) {
	req := instrumentRequest{OMSId: omsID, InstrumentId: instrumentID}

	src, ok := c.t.(EventSource)
	if !ok {
		var out Level1
		err := c.call(ctx, MethodGetLevel1, req, &out)
		return out, err
	}

	updates := make(chan Level1, 1)
	remove := src.On(EventLevel1Update, func(payload json.RawMessage) {
		var l Level1
		if err := json.Unmarshal(payload, &l); err != nil || l.InstrumentId != instrumentID {
			return
		}
		select {
		case updates <- l:
		default:
		}
	})
	defer remove()

	payload, err := c.raw(ctx, MethodSubscribeLevel1, req)
	defer c.unsubscribeLevel1(ctx, req)
	if err != nil {
		return Level1{}, err
	}
	if failure, ok := asFailure(MethodSubscribeLevel1, payload); ok {
		return Level1{}, failure
	}

	var snap Level1
	if err := json.Unmarshal(payload, &snap); err == nil && snap.InstrumentId == instrumentID {
		return snap, nil
	}

	select {
	case l := <-updates:
		return l, nil
	case <-ctx.Done():
		return Level1{}, ctx.Err()
	}
}

func (c *Client) unsubscribeLevel1(ctx context.Context, req instrumentRequest) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
	defer cancel()
	if _, err := c.t.Call(ctx, MethodUnsubscribeLevel1, req); err != nil && !errors.Is(err, ErrClosed) {
		c.log.WithField("instrument_id", req.InstrumentId).Warnf("unsubscribe level1: %v", err)
	}
}
