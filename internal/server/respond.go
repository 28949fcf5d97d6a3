package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/betbot/apexwallet/internal/wallet"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// statusFor maps wallet failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wallet.ErrWithdrawalInFlight):
		return http.StatusConflict
	case wallet.IsPolicy(err):
		return http.StatusUnprocessableEntity
	case wallet.IsNotFound(err):
		return http.StatusNotFound
	case wallet.IsVenueRejection(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := s.log.WithField("op", op).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		log.Errorf("%v", err)
	} else {
		log.Debugf("%v", err)
	}
	writeError(w, status, err.Error())
}
