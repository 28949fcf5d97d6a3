package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/apexwallet/pkg/apex"
)

func TestSessions_ConcurrentColdGetsDialOnce(t *testing.T) {
	var dials atomic.Int32
	v := newTestVenue()
	sessions := NewSessions(DialerFunc(func(ctx context.Context, acct Account) (Venue, apex.Session, error) {
		dials.Add(1)
		time.Sleep(20 * time.Millisecond)
		return v, apex.Session{User: apex.UserInfo{UserId: 42, AccountId: 7, OMSId: 1}}, nil
	}))

	var wg sync.WaitGroup
	got := make([]*Session, 10)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := sessions.Get(context.Background(), testAccount)
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, dials.Load())
	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 7, got[0].AccountID)
	assert.Equal(t, 1, got[0].OMSID)
	assert.Equal(t, "main", got[0].Account)
}

func TestSessions_DistinctCredentialsNeverShare(t *testing.T) {
	sessions := NewSessions(DialerFunc(func(ctx context.Context, acct Account) (Venue, apex.Session, error) {
		return newTestVenue(), apex.Session{User: apex.UserInfo{UserId: acct.UserID, AccountId: acct.UserID * 10, OMSId: 1}}, nil
	}))

	a := testAccount
	b := testAccount
	b.UserID = 43
	b.APIKey = "other"

	sa, err := sessions.Get(context.Background(), a)
	require.NoError(t, err)
	sb, err := sessions.Get(context.Background(), b)
	require.NoError(t, err)

	assert.NotSame(t, sa, sb)
	assert.Equal(t, 420, sa.AccountID)
	assert.Equal(t, 430, sb.AccountID)
}

func TestSessions_AuthFailureNotCached(t *testing.T) {
	var dials atomic.Int32
	sessions := NewSessions(DialerFunc(func(ctx context.Context, acct Account) (Venue, apex.Session, error) {
		if dials.Add(1) == 1 {
			return nil, apex.Session{}, errors.Wrap(apex.ErrNotAuthenticated, "Invalid signature")
		}
		return newTestVenue(), apex.Session{User: apex.UserInfo{UserId: 42, AccountId: 7, OMSId: 1}}, nil
	}))

	_, err := sessions.Get(context.Background(), testAccount)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Contains(t, err.Error(), "Invalid signature")

	s, err := sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Equal(t, 7, s.AccountID)
	assert.EqualValues(t, 2, dials.Load())
}

func TestSessions_DropAndClose(t *testing.T) {
	var dials atomic.Int32
	venues := []*apex.MockClient{}
	var mu sync.Mutex
	sessions := NewSessions(DialerFunc(func(ctx context.Context, acct Account) (Venue, apex.Session, error) {
		dials.Add(1)
		v := newTestVenue()
		mu.Lock()
		venues = append(venues, v)
		mu.Unlock()
		return v, apex.Session{User: apex.UserInfo{AccountId: 7, OMSId: 1}}, nil
	}))

	first, err := sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)
	sessions.Drop(first)
	assert.True(t, venues[0].Closed())

	_, err = sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)
	assert.EqualValues(t, 2, dials.Load())

	require.NoError(t, sessions.Close())
	assert.True(t, venues[1].Closed())
}

func TestSessions_DropIgnoresReplacedSession(t *testing.T) {
	var dials atomic.Int32
	sessions := NewSessions(DialerFunc(func(ctx context.Context, acct Account) (Venue, apex.Session, error) {
		dials.Add(1)
		return newTestVenue(), apex.Session{User: apex.UserInfo{AccountId: 7, OMSId: 1}}, nil
	}))

	stale, err := sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)
	sessions.Drop(stale)
	fresh, err := sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)

	sessions.Drop(stale)
	again, err := sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Same(t, fresh, again)
	assert.False(t, fresh.Venue.(*apex.MockClient).Closed())
	assert.EqualValues(t, 2, dials.Load())
}

func TestSessions_LostConnectionRedials(t *testing.T) {
	var venues []*apex.MockClient
	sessions := NewSessions(DialerFunc(func(ctx context.Context, acct Account) (Venue, apex.Session, error) {
		v := newTestVenue()
		venues = append(venues, v)
		return v, apex.Session{User: apex.UserInfo{AccountId: 7, OMSId: 1}}, nil
	}))

	first, err := sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)
	venues[0].Drop()

	second, err := sessions.Get(context.Background(), testAccount)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Len(t, venues, 2)
	assert.True(t, venues[0].Closed())
	assert.True(t, second.Venue.Alive())
}
