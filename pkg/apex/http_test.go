package apex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_PostsToMethodPathWithToken(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("aptoken")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`[{"Key":"UseGoogle2FA","Value":"true"}]`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", time.Second)
	tr.SetSessionToken("tok")
	c := NewClient(tr)

	cfg, err := c.GetUserConfig(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, cfg, 1)
	assert.Equal(t, "/AP/GetUserConfig", gotPath)
	assert.Equal(t, "tok", gotToken)
	assert.EqualValues(t, 42, gotBody["UserId"])
}

func TestHTTP_RetriesReadsOnServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(NewHTTPTransport(srv.URL, time.Second))
	_, err := c.GetProducts(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestHTTP_NeverRetriesWithdrawal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	c := NewClient(NewHTTPTransport(srv.URL, time.Second))
	_, err := c.CreateWithdrawTicket(context.Background(), CreateWithdrawTicketRequest{})

	var apexErr *Error
	require.True(t, errors.As(err, &apexErr))
	assert.Equal(t, http.StatusInternalServerError, apexErr.Code)
	assert.EqualValues(t, 1, hits.Load())
}

func TestHTTP_HasNoEventSource(t *testing.T) {
	var tr Transport = NewHTTPTransport("http://localhost", time.Second)
	_, ok := tr.(EventSource)
	assert.False(t, ok)
}
