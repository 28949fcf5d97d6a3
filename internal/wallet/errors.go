package wallet

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/betbot/apexwallet/internal/execution"
)

// Policy and configuration failures.
var (
	ErrUnsupportedCrypto  = errors.New("unsupported crypto")
	ErrTwoFactorRequired  = errors.New("2FA should be enabled for the account")
	ErrNoWithdrawProvider = errors.New("no withdrawal provider configured")
	ErrInvalidAddress     = errors.New("invalid destination address")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrUnknownAccount     = errors.New("unknown account")
)

// ErrWithdrawalInFlight rejects a withdrawal identical to one still running.
var ErrWithdrawalInFlight = execution.ErrInFlight

// Venue refusals.
var (
	ErrAuthentication    = errors.New("authentication failed")
	ErrAddressGeneration = errors.New("failed generating new address")
)

// Missing reference data.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrPositionNotFound   = errors.New("position not found")
)

// VenueRejection is a withdrawal the venue refused, carrying its reason.
type VenueRejection struct {
	Op     string
	Detail string
}

func (e *VenueRejection) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s rejected by venue", e.Op)
	}
	return fmt.Sprintf("%s rejected by venue: %s", e.Op, e.Detail)
}

// IsPolicy reports whether err is a configuration or policy failure.
func IsPolicy(err error) bool {
	for _, target := range []error{ErrUnsupportedCrypto, ErrTwoFactorRequired, ErrNoWithdrawProvider, ErrInvalidAddress, ErrInvalidAmount} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a missing product, instrument, position
// or account.
func IsNotFound(err error) bool {
	for _, target := range []error{ErrProductNotFound, ErrInstrumentNotFound, ErrPositionNotFound, ErrUnknownAccount} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsVenueRejection reports whether err is a refusal by the venue.
func IsVenueRejection(err error) bool {
	var rej *VenueRejection
	return errors.As(err, &rej) || errors.Is(err, ErrAuthentication) || errors.Is(err, ErrAddressGeneration)
}
