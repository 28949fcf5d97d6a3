package apex

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// HTTPTransport calls the gateway's REST surface, POST {base}/AP/{method}.
// It has no event stream.
type HTTPTransport struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPTransport builds a resty client against host. Reads are retried on
// 429 and 5xx; withdrawal submission never is.
func NewHTTPTransport(host string, timeout time.Duration) *HTTPTransport {
	host = strings.TrimSuffix(host, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil {
				return false
			}
			if strings.HasSuffix(resp.Request.URL, "/"+MethodCreateWithdrawTicket) {
				return false
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &HTTPTransport{client: client}
}

// SetSessionToken attaches token as the aptoken header on later calls.
func (t *HTTPTransport) SetSessionToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

// Call implements Transport.
func (t *HTTPTransport) Call(ctx context.Context, method string, req any) (json.RawMessage, error) {
	if req == nil {
		req = struct{}{}
	}

	r := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(req)

	t.mu.RLock()
	if t.token != "" {
		r.SetHeader("aptoken", t.token)
	}
	t.mu.RUnlock()

	resp, err := r.Post("/AP/" + method)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(err, "apex %s", method)
	}
	if !resp.IsSuccess() {
		body := strings.TrimSpace(string(resp.Body()))
		if e, ok := asFailure(method, resp.Body()); ok {
			e.Code = resp.StatusCode()
			return nil, e
		}
		return nil, &Error{Method: method, Code: resp.StatusCode(), Message: body}
	}
	return json.RawMessage(resp.Body()), nil
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	return nil
}
