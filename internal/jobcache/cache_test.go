// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package jobcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/internal/jobcache"
	"github.com/trac-platform/trac/internal/jobcache/membackend"
)

func TestOpenNewTicketThenSupersededOnSecondAttempt(t *testing.T) {
	// Scenario S5: open ticket on key K (rev 0), add entry, then open
	// another ticket on K at revision 0 — the second must be superseded.
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	require.True(t, t1.Valid())
	require.Equal(t, int64(0), t1.Revision)

	rev, err := c.AddEntry(ctx, t1, "QUEUED", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, int64(1), rev)

	t2, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	require.False(t, t2.Valid())
	require.True(t, t2.Superseded)
}

func TestOpenTicketMissingEntry(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	ticket, err := c.OpenTicket(ctx, "nope", 0, 0)
	require.NoError(t, err)
	require.False(t, ticket.Valid())
	require.True(t, ticket.Missing)
}

func TestOpenTicketSupersededOnStaleRevision(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", nil)
	require.NoError(t, err)

	stale, err := c.OpenTicket(ctx, "K", 0, 0)
	require.NoError(t, err)
	require.True(t, stale.Superseded)

	current, err := c.OpenTicket(ctx, "K", 1, 0)
	require.NoError(t, err)
	require.True(t, current.Valid())
}

func TestUpdateEntryBumpsRevisionAndRejectsStaleTicket(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", []byte("v1"))
	require.NoError(t, err)

	// t1 was consumed by addEntry; reusing it against updateEntry fails.
	_, err = c.UpdateEntry(ctx, t1, "RUNNING", []byte("v2"))
	require.ErrorIs(t, err, jobcache.ErrCacheTicket)

	t2, err := c.OpenTicket(ctx, "K", 1, 0)
	require.NoError(t, err)
	rev, err := c.UpdateEntry(ctx, t2, "RUNNING", []byte("v2"))
	require.NoError(t, err)
	require.Equal(t, int64(2), rev)

	entry, err := c.GetEntry(ctx, "K", jobcache.Latest())
	require.NoError(t, err)
	require.Equal(t, "RUNNING", entry.Status)
	require.Equal(t, []byte("v2"), entry.Value)
}

func TestAddEntryRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", nil)
	require.NoError(t, err)

	t2, err := c.OpenTicket(ctx, "K", 1, 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t2, "QUEUED", nil)
	require.ErrorIs(t, err, jobcache.ErrEntryExists)
}

func TestRemoveEntryThenGetEntryMisses(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", nil)
	require.NoError(t, err)

	t2, err := c.OpenTicket(ctx, "K", 1, 0)
	require.NoError(t, err)
	require.NoError(t, c.RemoveEntry(ctx, t2))

	_, err = c.GetEntry(ctx, "K", jobcache.Latest())
	require.ErrorIs(t, err, jobcache.ErrEntryNotFound)
}

func TestCloseTicketIsNoopOnSuperseded(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", nil)
	require.NoError(t, err)

	superseded, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	require.NoError(t, c.CloseTicket(ctx, superseded))
}

func TestOpenTicketGrantsAfterCloseTicket(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", nil)
	require.NoError(t, err)

	t2, err := c.OpenTicket(ctx, "K", 1, 0)
	require.NoError(t, err)
	require.NoError(t, c.CloseTicket(ctx, t2))

	t3, err := c.OpenTicket(ctx, "K", 1, 0)
	require.NoError(t, err)
	require.True(t, t3.Valid())
}

func TestOpenTicketSupersededWhileAnotherIsLive(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", nil)
	require.NoError(t, err)

	held, err := c.OpenTicket(ctx, "K", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, held.Valid())

	again, err := c.OpenTicket(ctx, "K", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, again.Superseded)
}

func TestGetEntryByTicketRejectsMismatchedTicket(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	t1, err := c.OpenNewTicket(ctx, "K", 0)
	require.NoError(t, err)
	_, err = c.AddEntry(ctx, t1, "QUEUED", nil)
	require.NoError(t, err)

	_, err = c.GetEntry(ctx, "K", jobcache.ByTicket(t1))
	require.ErrorIs(t, err, jobcache.ErrCacheTicket)
}

func TestQueryStatusFiltersAndSkipsOpenTickets(t *testing.T) {
	ctx := context.Background()
	c := jobcache.New(membackend.New())

	for _, k := range []string{"a", "b", "c"} {
		ticket, err := c.OpenNewTicket(ctx, k, 0)
		require.NoError(t, err)
		status := "QUEUED"
		if k == "c" {
			status = "RUNNING"
		}
		_, err = c.AddEntry(ctx, ticket, status, nil)
		require.NoError(t, err)
	}

	held, err := c.OpenTicket(ctx, "a", 1, time.Minute)
	require.NoError(t, err)

	entries, err := c.QueryStatus(ctx, []string{"QUEUED"}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Key)

	entries, err = c.QueryStatus(ctx, []string{"QUEUED"}, true)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	_ = held
}
