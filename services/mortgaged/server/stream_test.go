package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lendchain/services/mortgaged/journal"
)

func TestStreamReplaysBacklogThenFollows(t *testing.T) {
	f := newFixture(t)
	f.borrowItem()

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/stream?mortgage=1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() journal.Entry {
		var entry journal.Entry
		require.NoError(t, wsjson.Read(ctx, conn, &entry))
		return entry
	}
	require.Equal(t, "mortgage.created", read().Type)
	require.Equal(t, "mortgage.collateral_registered", read().Type)

	lent := f.do(http.MethodPost, "/v1/mortgages/1/lend", lender, valueRequest{Value: "1000000"})
	require.Equal(t, http.StatusOK, lent.Code, lent.Body.String())

	commission := read()
	require.Equal(t, "mortgage.commission", commission.Type)
	require.Equal(t, uint64(3), commission.Sequence)
	require.Equal(t, "mortgage.lent", read().Type)
}

func TestStreamHubDropsSlowSubscriber(t *testing.T) {
	hub := newStreamHub()
	updates, cancel := hub.subscribe()
	defer cancel()

	entries := make([]journal.Entry, subscriberBuffer+1)
	for i := range entries {
		entries[i] = journal.Entry{Sequence: uint64(i + 1)}
	}
	hub.publish(entries)

	received := 0
	for range updates {
		received++
	}
	require.Equal(t, subscriberBuffer, received)
	require.Empty(t, hub.subs)
}

func TestMatchesFilter(t *testing.T) {
	one, two := uint64(1), uint64(2)
	entry := journal.Entry{Type: "mortgage.lent", MortgageID: &one}
	require.True(t, matches(journal.Filter{}, entry))
	require.True(t, matches(journal.Filter{MortgageID: &one, Type: "mortgage.lent"}, entry))
	require.False(t, matches(journal.Filter{MortgageID: &two}, entry))
	require.False(t, matches(journal.Filter{Type: "mortgage.repaid"}, entry))
	require.False(t, matches(journal.Filter{MortgageID: &one}, journal.Entry{Type: "mortgage.paused"}))
}
