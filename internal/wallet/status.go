package wallet

import (
	"context"

	"github.com/pkg/errors"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/pkg/apex"
)

// Status is the outcome of a withdrawal as reported to callers.
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusAuthorized Status = "authorized"
	StatusRejected   Status = "rejected"
	StatusNotSeen    Status = "notSeen"
)

var venueStatuses = map[string]Status{
	"Confirmed":    StatusConfirmed,
	"Accepted":     StatusAuthorized,
	"AutoAccepted": StatusAuthorized,
	"Pending":      StatusAuthorized,
	"Pending2Fa":   StatusAuthorized,
	"Processing":   StatusAuthorized,
	"Delayed":      StatusAuthorized,
	"Rejected":     StatusRejected,
	"Failed":       StatusRejected,
}

// MapStatus translates a venue ticket status. Unknown values map to notSeen.
func MapStatus(venueStatus string) Status {
	if st, ok := venueStatuses[venueStatus]; ok {
		return st
	}
	return StatusNotSeen
}

// LatestTicket returns the ticket to address with the greatest
// CreatedTimestampTick; the first one wins a tie.
func LatestTicket(tickets []apex.WithdrawTicket, address string) (apex.WithdrawTicket, bool) {
	var (
		latest apex.WithdrawTicket
		found  bool
	)
	for _, t := range tickets {
		if t.ExternalAddress() != address {
			continue
		}
		if !found || t.CreatedTimestampTick > latest.CreatedTimestampTick {
			latest, found = t, true
		}
	}
	return latest, found
}

// Classify maps the most recent ticket to address onto a Status.
func Classify(tickets []apex.WithdrawTicket, address string) Status {
	t, ok := LatestTicket(tickets, address)
	if !ok {
		return StatusNotSeen
	}
	return MapStatus(t.Status)
}

// ClassifyStatus fetches the account's withdrawal tickets and classifies the
// latest one to address.
func ClassifyStatus(ctx context.Context, s *Session, address string) (Status, error) {
	metrics.StatusQueries.Add(1)
	tickets, err := s.Venue.GetWithdrawTickets(ctx, s.OMSID, s.AccountID)
	if err != nil {
		return "", errors.Wrap(err, "get withdraw tickets")
	}
	return Classify(tickets, address), nil
}
