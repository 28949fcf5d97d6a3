package apex

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	replies  map[string]func(req any) (json.RawMessage, error)
	calls    []string
	requests map[string]any
	token    string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		replies:  make(map[string]func(req any) (json.RawMessage, error)),
		requests: make(map[string]any),
	}
}

func (f *fakeTransport) reply(method, body string) {
	f.replies[method] = func(any) (json.RawMessage, error) { return json.RawMessage(body), nil }
}

func (f *fakeTransport) Call(ctx context.Context, method string, req any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.requests[method] = req
	fn := f.replies[method]
	f.mu.Unlock()
	if fn == nil {
		return json.RawMessage(`{}`), nil
	}
	return fn(req)
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) SetSessionToken(token string) { f.token = token }

func (f *fakeTransport) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// eventTransport adds an event stream to fakeTransport.
type eventTransport struct {
	*fakeTransport
	hmu      sync.Mutex
	handlers map[string][]Handler
	removed  int
}

func newEventTransport() *eventTransport {
	return &eventTransport{fakeTransport: newFakeTransport(), handlers: make(map[string][]Handler)}
}

func (e *eventTransport) On(event string, h Handler) func() {
	e.hmu.Lock()
	e.handlers[event] = append(e.handlers[event], h)
	e.hmu.Unlock()
	return func() {
		e.hmu.Lock()
		e.handlers[event] = nil
		e.removed++
		e.hmu.Unlock()
	}
}

func (e *eventTransport) emit(event, body string) {
	e.hmu.Lock()
	hs := append([]Handler(nil), e.handlers[event]...)
	e.hmu.Unlock()
	for _, h := range hs {
		h(json.RawMessage(body))
	}
}

func (e *eventTransport) removedCount() int {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	return e.removed
}

func TestClient_ListFailureBecomesError(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodGetProducts, `{"result":false,"errormsg":"Not Authorized","errorcode":20}`)
	c := NewClient(ft)

	_, err := c.GetProducts(context.Background(), 1)
	var apexErr *Error
	require.True(t, errors.As(err, &apexErr))
	assert.Equal(t, 20, apexErr.Code)
}

func TestClient_DecodesPositions(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodGetAccountPositions, `[{"ProductSymbol":"BTC","ProductId":1,"Amount":1.5,"Hold":0.25}]`)
	c := NewClient(ft)

	ps, err := c.GetAccountPositions(context.Background(), 1, 7)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.True(t, ps[0].Amount.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, ps[0].Hold.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, accountRequest{OMSId: 1, AccountId: 7}, ft.requests[MethodGetAccountPositions])
}

func TestClient_CreateWithdrawTicketKeepsRejection(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodCreateWithdrawTicket, `{"result":false,"errormsg":"Operation Failed","detail":"Insufficient Balance"}`)
	c := NewClient(ft)

	resp, err := c.CreateWithdrawTicket(context.Background(), CreateWithdrawTicketRequest{})
	require.NoError(t, err)
	assert.False(t, resp.Result)
	assert.Equal(t, "Insufficient Balance", resp.Detail)
}

func TestClient_TemplateTypes(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodGetWithdrawFormTemplateTypes, `{"TemplateTypes":[{"TemplateName":"ToExternalBitcoinAddress"},{"TemplateName":"Other"}]}`)
	c := NewClient(ft)

	tt, err := c.GetWithdrawFormTemplateTypes(context.Background(), 1, 7, 3)
	require.NoError(t, err)
	require.Len(t, tt, 2)
	assert.Equal(t, "ToExternalBitcoinAddress", tt[0].TemplateName)
}

func TestLevel1Snapshot_FromSubscribeReply(t *testing.T) {
	et := newEventTransport()
	et.reply(MethodSubscribeLevel1, `{"InstrumentId":5,"BestBid":30000.5,"BestOffer":30001}`)
	c := NewClient(et)

	l, err := c.Level1Snapshot(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, l.BestBid.Equal(decimal.RequireFromString("30000.5")))
	assert.Equal(t, []string{MethodSubscribeLevel1, MethodUnsubscribeLevel1}, et.called())
	assert.Equal(t, 1, et.removedCount())
}

func TestLevel1Snapshot_FromFirstUpdateEvent(t *testing.T) {
	et := newEventTransport()
	et.replies[MethodSubscribeLevel1] = func(any) (json.RawMessage, error) {
		go func() {
			et.emit(EventLevel1Update, `{"InstrumentId":9,"BestBid":1}`)
			et.emit(EventLevel1Update, `{"InstrumentId":5,"BestBid":42}`)
		}()
		return json.RawMessage(`{"result":true}`), nil
	}
	c := NewClient(et)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l, err := c.Level1Snapshot(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, l.BestBid.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, 1, et.removedCount())
	assert.Contains(t, et.called(), MethodUnsubscribeLevel1)
}

func TestLevel1Snapshot_CancelledStillDeregisters(t *testing.T) {
	et := newEventTransport()
	et.reply(MethodSubscribeLevel1, `{"result":true}`)
	c := NewClient(et)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Level1Snapshot(ctx, 1, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, et.removedCount())
	assert.Contains(t, et.called(), MethodUnsubscribeLevel1)
}

func TestLevel1Snapshot_NoEventsUsesGetLevel1(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodGetLevel1, `{"InstrumentId":5,"BestBid":7}`)
	c := NewClient(ft)

	l, err := c.Level1Snapshot(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, l.BestBid.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, []string{MethodGetLevel1}, ft.called())
}

func TestSign(t *testing.T) {
	a := Sign("secret", "1700000000000", 42, "key")
	b := Sign("secret", "1700000000000", 42, "key")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Sign("secret", "1700000000001", 42, "key"))
}

func TestLogin_ComputesSignature(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodAuthenticateUser, `{"Authenticated":true,"SessionToken":"tok","User":{"UserId":42,"AccountId":7,"OMSId":1}}`)
	now := time.UnixMilli(1700000000000)
	c := NewClient(ft, WithClock(func() time.Time { return now }))

	sess, err := c.Login(context.Background(), Credentials{UserID: 42, APIKey: "key", Secret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 7, sess.User.AccountId)
	assert.Equal(t, "tok", ft.token)

	req := ft.requests[MethodAuthenticateUser].(AuthenticateUserRequest)
	assert.Equal(t, "1700000000000", req.Nonce)
	assert.Equal(t, "42", req.UserId)
	assert.Equal(t, Sign("secret", "1700000000000", 42, "key"), req.Signature)
}

func TestLogin_Precomputed(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodAuthenticateUser, `{"Authenticated":true,"User":{"UserId":42,"AccountId":7,"OMSId":1}}`)
	c := NewClient(ft)

	_, err := c.Login(context.Background(), Credentials{UserID: 42, APIKey: "key", Signature: "sig", Nonce: "n"})
	require.NoError(t, err)
	req := ft.requests[MethodAuthenticateUser].(AuthenticateUserRequest)
	assert.Equal(t, "sig", req.Signature)
	assert.Equal(t, "n", req.Nonce)
}

func TestLogin_Refused(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodAuthenticateUser, `{"Authenticated":false,"errormsg":"Invalid signature"}`)
	c := NewClient(ft)

	_, err := c.Login(context.Background(), Credentials{UserID: 42, APIKey: "key", Secret: "s"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Contains(t, err.Error(), "Invalid signature")
}

func TestLogin_TwoFactor(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	now := time.Unix(1700000000, 0)

	ft := newFakeTransport()
	ft.reply(MethodAuthenticateUser, `{"Authenticated":false,"Requires2FA":true,"User":{"UserId":42,"AccountId":7,"OMSId":1}}`)
	ft.replies[MethodAuthenticate2FA] = func(req any) (json.RawMessage, error) {
		want, err := totp.GenerateCode(secret, now)
		if err != nil || req.(Authenticate2FARequest).Code != want {
			return json.RawMessage(`{"Authenticated":false,"errormsg":"bad code"}`), nil
		}
		return json.RawMessage(`{"Authenticated":true,"SessionToken":"tok2","UserId":42}`), nil
	}
	c := NewClient(ft, WithClock(func() time.Time { return now }))

	sess, err := c.Login(context.Background(), Credentials{UserID: 42, APIKey: "key", Secret: "s", TOTPSecret: secret})
	require.NoError(t, err)
	assert.Equal(t, "tok2", sess.SessionToken)
	assert.Equal(t, 7, sess.User.AccountId)

	_, err = c.Login(context.Background(), Credentials{UserID: 42, APIKey: "key", Secret: "s"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestClient_RateLimiterCancelled(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, WithRateLimiter(blockingLimiter{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetProducts(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ft.called())
}

type blockingLimiter struct{}

func (blockingLimiter) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingLimiter) Allow() bool { return false }
func (blockingLimiter) GetRemaining() int { return 0 }

func TestClient_GetWithdrawTicketsSkipsBadForms(t *testing.T) {
	ft := newFakeTransport()
	ft.reply(MethodGetWithdrawTickets, `[
		{"Status":"Pending","CreatedTimestampTick":1,"TemplateForm":"{\"ExternalAddress\":\"a\"}"},
		{"Status":"Failed","CreatedTimestampTick":2,"TemplateForm":"not json"},
		{"Status":"Confirmed","CreatedTimestampTick":3,"TemplateForm":{"ExternalAddress":"b"}}
	]`)
	c := NewClient(ft)

	tickets, err := c.GetWithdrawTickets(context.Background(), 1, 7)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "a", tickets[0].ExternalAddress())
	assert.Equal(t, "b", tickets[1].ExternalAddress())
}
