package apex

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned for calls on a closed or broken transport.
	ErrClosed = errors.New("apex: transport closed")
	// ErrNotAuthenticated is returned when the gateway refuses a login.
	ErrNotAuthenticated = errors.New("apex: authentication failed")
)

// Error is a failure reported by the gateway, either as an error frame or a
// {"result": false} reply.
type Error struct {
	Method  string
	Code    int
	Message string
	Detail  string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("apex %s failed", e.Method)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// genericResponse is the shape of every APEX failure body.
type genericResponse struct {
	Result    *bool  `json:"result"`
	ErrorMsg  string `json:"errormsg"`
	ErrorCode int    `json:"errorcode"`
	Detail    string `json:"detail"`
}

// asFailure reports whether payload is an object with "result": false.
func asFailure(method string, payload json.RawMessage) (*Error, bool) {
	var g genericResponse
	if err := json.Unmarshal(payload, &g); err != nil {
		return nil, false
	}
	if g.Result == nil || *g.Result {
		return nil, false
	}
	return &Error{Method: method, Code: g.ErrorCode, Message: g.ErrorMsg, Detail: g.Detail}, true
}
