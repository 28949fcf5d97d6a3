package metrics

import "expvar"

var (
	SessionLogins       = expvar.NewInt("session_logins")
	SessionLoginErrors  = expvar.NewInt("session_login_errors")
	AffordabilityChecks = expvar.NewInt("affordability_checks")
	WithdrawalsSent     = expvar.NewInt("withdrawals_submitted")
	WithdrawalsRejected = expvar.NewInt("withdrawals_rejected")
	TxLookups           = expvar.NewInt("tx_lookups")
	TxResolved          = expvar.NewInt("tx_resolved")
	TxPending           = expvar.NewInt("tx_pending")
	StatusQueries       = expvar.NewInt("status_queries")
	AddressesGenerated  = expvar.NewInt("addresses_generated")

	// PendingWithdrawals is the count left after the last background sweep.
	PendingWithdrawals = expvar.NewInt("withdrawals_pending")
)
