package apex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
)

// Credentials are the API login material of one venue user. When Signature
// and Nonce are both set they are sent as-is; otherwise a fresh signature is
// computed from Secret.
type Credentials struct {
	UserID     int
	APIKey     string
	Secret     string
	Signature  string
	Nonce      string
	TOTPSecret string
}

// Sign returns hex(HMAC-SHA256(secret, nonce + userId + apiKey)).
func Sign(secret, nonce string, userID int, apiKey string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce + strconv.Itoa(userID) + apiKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Session is the result of a successful login.
type Session struct {
	User         UserInfo
	SessionToken string
}

func (c *Client) authRequest(cr Credentials) (AuthenticateUserRequest, error) {
	req := AuthenticateUserRequest{
		APIKey: cr.APIKey,
		UserId: strconv.Itoa(cr.UserID),
	}
	if cr.Signature != "" && cr.Nonce != "" {
		req.Signature = cr.Signature
		req.Nonce = cr.Nonce
		return req, nil
	}
	if cr.Secret == "" {
		return req, errors.Wrap(ErrNotAuthenticated, "no secret or pre-computed signature configured")
	}
	req.Nonce = strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Signature = Sign(cr.Secret, req.Nonce, cr.UserID, cr.APIKey)
	return req, nil
}

// Login authenticates the transport's session. When the venue asks for a
// second factor, a TOTP code is derived from cr.TOTPSecret. Transports that
// need it receive the session token.
func (c *Client) Login(ctx context.Context, cr Credentials) (Session, error) {
	req, err := c.authRequest(cr)
	if err != nil {
		return Session{}, err
	}

	resp, err := c.AuthenticateUser(ctx, req)
	if err != nil {
		return Session{}, errors.Wrap(err, "authenticate user")
	}

	sess := Session{User: resp.User, SessionToken: resp.SessionToken}
	switch {
	case resp.Requires2FA:
		if cr.TOTPSecret == "" {
			return Session{}, errors.Wrap(ErrNotAuthenticated, "venue requires a 2FA code and no totp secret is configured")
		}
		code, err := totp.GenerateCode(cr.TOTPSecret, c.now())
		if err != nil {
			return Session{}, errors.Wrap(err, "generate totp code")
		}
		resp2, err := c.Authenticate2FA(ctx, code)
		if err != nil {
			return Session{}, errors.Wrap(err, "authenticate 2fa")
		}
		if !resp2.Authenticated {
			return Session{}, errors.Wrapf(ErrNotAuthenticated, "2fa rejected: %s", resp2.ErrorMsg)
		}
		sess.SessionToken = resp2.SessionToken
		if sess.User.UserId == 0 {
			sess.User.UserId = resp2.UserId
		}
	case !resp.Authenticated:
		msg := resp.ErrorMsg
		if msg == "" {
			msg = "not authenticated"
		}
		return Session{}, errors.Wrap(ErrNotAuthenticated, msg)
	}

	if ts, ok := c.t.(TokenSetter); ok && sess.SessionToken != "" {
		ts.SetSessionToken(sess.SessionToken)
	}
	return sess, nil
}
