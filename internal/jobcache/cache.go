// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package jobcache implements a ticketed, revisioned key-value store:
// cooperative mutual exclusion over job state via optimistic tickets
// rather than held locks, so a crashed mutator's grip on a key releases
// itself at expiry instead of wedging it forever.
//
// This package exposes queryStatus/getEntry as the canonical operation
// names (rather than queryState/queryKey).
package jobcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zeebo/errs"

	"github.com/trac-platform/trac/pkg/metadata"
)

// Error is the error class for unexpected (non-KindedError) jobcache
// failures, matching the dal/metaservices error-handling idiom.
var Error = errs.Class("jobcache")

// DefaultTicketLifetime and MaxTicketLifetime bound how long a granted
// ticket may be held before it expires on its own.
const (
	DefaultTicketLifetime = 30 * time.Second
	MaxTicketLifetime     = 5 * time.Minute
)

// Ticket is a short-lived token granting the exclusive right to mutate a
// cache key at a specific revision. A Ticket returned as supersededTicket
// or a missing-entry sentinel is never Valid and must not be passed to
// addEntry/updateEntry/removeEntry.
type Ticket struct {
	Key        string
	Revision   int64
	GrantTime  time.Time
	Expiry     time.Time
	Superseded bool
	Missing    bool

	gen uint64 // backend compare-and-swap generation captured at grant time
}

// Valid reports whether t is an actually-held ticket, as opposed to one of
// the sentinel values openNewTicket/openTicket return when they can't
// grant one.
func (t Ticket) Valid() bool {
	return !t.Superseded && !t.Missing
}

var supersededTicket = Ticket{Superseded: true}

func missingEntryTicket(key string) Ticket {
	return Ticket{Key: key, Missing: true}
}

// Entry is one keyed, revisioned record in the job cache.
type Entry struct {
	Key          string
	Revision     int64
	Status       string
	Value        []byte
	LastActivity time.Time
}

// record is the representation a Backend actually stores: an Entry plus
// whatever ticket is currently granted against it, if any. Marshaled as
// JSON so the same logic works unmodified over membackend and
// redisbackend.
type record struct {
	HasEntry     bool      `json:"hasEntry"`
	Status       string    `json:"status"`
	Value        []byte    `json:"value"`
	LastActivity time.Time `json:"lastActivity"`
	Revision     int64     `json:"revision"`

	HasTicket    bool      `json:"hasTicket"`
	TicketRev    int64     `json:"ticketRevision"`
	TicketGrant  time.Time `json:"ticketGrant"`
	TicketExpiry time.Time `json:"ticketExpiry"`
}

func (r record) entry(key string) Entry {
	return Entry{Key: key, Revision: r.Revision, Status: r.Status, Value: r.Value, LastActivity: r.LastActivity}
}

func (r record) ticketLive(now time.Time) bool {
	return r.HasTicket && now.Before(r.TicketExpiry)
}

// EntrySelector chooses one of getEntry's three read modes: Latest (no
// constraint), AtRevision (must match exactly), or ByTicket (must equal
// the ticket's revision and the ticket must still be the one on record).
type EntrySelector struct {
	ticket   *Ticket
	revision *int64
}

// Latest selects the current entry regardless of revision.
func Latest() EntrySelector { return EntrySelector{} }

// AtRevision selects the entry only if it is still at rev.
func AtRevision(rev int64) EntrySelector { return EntrySelector{revision: &rev} }

// ByTicket selects the entry only if t is still the live, held ticket.
func ByTicket(t Ticket) EntrySelector { return EntrySelector{ticket: &t} }

// Cache implements the job cache operations over a Backend.
type Cache struct {
	backend Backend
	clock   func() time.Time
}

// New builds a Cache over backend, using the wall clock for ticket grants
// and expiry checks.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, clock: time.Now}
}

func clampTicketLifetime(dur time.Duration) time.Duration {
	if dur <= 0 {
		return DefaultTicketLifetime
	}
	if dur > MaxTicketLifetime {
		return MaxTicketLifetime
	}
	return dur
}

// OpenNewTicket grants a ticket at revision 0 if key is absent, or returns
// a superseded ticket if an entry (or a still-placeholder ticket) already
// exists for key.
func (c *Cache) OpenNewTicket(ctx context.Context, key string, dur time.Duration) (Ticket, error) {
	dur = clampTicketLifetime(dur)
	_, _, found, err := c.backend.Load(ctx, key)
	if err != nil {
		return Ticket{}, err
	}
	if found {
		return supersededTicket, nil
	}

	now := c.clock()
	rec := record{HasTicket: true, TicketRev: 0, TicketGrant: now, TicketExpiry: now.Add(dur)}
	data, err := json.Marshal(rec)
	if err != nil {
		return Ticket{}, Error.Wrap(err)
	}
	gen, err := c.backend.CompareAndSwap(ctx, key, 0, data)
	if errors.Is(err, ErrConflict) {
		return supersededTicket, nil
	}
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Key: key, Revision: 0, GrantTime: now, Expiry: rec.TicketExpiry, gen: gen}, nil
}

// OpenTicket grants a ticket on key iff the stored entry is still exactly
// at revision and its current ticket (if any) has expired. Returns a
// missing-entry sentinel if nothing is stored under key (a placeholder
// left by OpenNewTicket counts as stored), or a superseded ticket
// if the revision has moved on or another ticket is still live.
func (c *Cache) OpenTicket(ctx context.Context, key string, revision int64, dur time.Duration) (Ticket, error) {
	dur = clampTicketLifetime(dur)
	data, gen, found, err := c.backend.Load(ctx, key)
	if err != nil {
		return Ticket{}, err
	}
	if !found {
		return missingEntryTicket(key), nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Ticket{}, Error.Wrap(err)
	}
	now := c.clock()
	if rec.Revision != revision {
		return supersededTicket, nil
	}
	if rec.ticketLive(now) {
		return supersededTicket, nil
	}

	rec.HasTicket = true
	rec.TicketRev = revision
	rec.TicketGrant = now
	rec.TicketExpiry = now.Add(dur)
	newData, err := json.Marshal(rec)
	if err != nil {
		return Ticket{}, Error.Wrap(err)
	}
	newGen, err := c.backend.CompareAndSwap(ctx, key, gen, newData)
	if errors.Is(err, ErrConflict) {
		return supersededTicket, nil
	}
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Key: key, Revision: revision, GrantTime: now, Expiry: rec.TicketExpiry, gen: newGen}, nil
}

// CloseTicket clears the active ticket on ticket.Key. A no-op if ticket
// was never actually held, or if it's no longer the current ticket on
// record (already superseded, expired, or consumed by a write).
func (c *Cache) CloseTicket(ctx context.Context, ticket Ticket) error {
	if !ticket.Valid() {
		return nil
	}
	data, gen, found, err := c.backend.Load(ctx, ticket.Key)
	if err != nil {
		return err
	}
	if !found || gen != ticket.gen {
		return nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Error.Wrap(err)
	}
	rec.HasTicket = false
	newData, err := json.Marshal(rec)
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := c.backend.CompareAndSwap(ctx, ticket.Key, gen, newData); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	return nil
}

// requireHeldTicket loads the record for ticket.Key and confirms ticket
// is still exactly the live, held ticket on it. Every mutating operation
// (addEntry/updateEntry/removeEntry) starts here.
func (c *Cache) requireHeldTicket(ctx context.Context, ticket Ticket) (record, uint64, error) {
	if !ticket.Valid() {
		return record{}, 0, ErrCacheTicket
	}
	data, gen, found, err := c.backend.Load(ctx, ticket.Key)
	if err != nil {
		return record{}, 0, err
	}
	if !found || gen != ticket.gen {
		return record{}, 0, ErrCacheTicket
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, 0, Error.Wrap(err)
	}
	if !rec.HasTicket || rec.TicketRev != ticket.Revision || !rec.ticketLive(c.clock()) {
		return record{}, 0, ErrCacheTicket
	}
	return rec, gen, nil
}

// AddEntry installs the first value under a ticket opened by OpenNewTicket
// (or OpenTicket against a not-yet-populated placeholder), returning the
// entry's new revision. Fails with ErrCacheTicket if the ticket isn't held,
// and with ErrEntryExists if an entry is already there.
func (c *Cache) AddEntry(ctx context.Context, ticket Ticket, status string, value []byte) (int64, error) {
	rec, gen, err := c.requireHeldTicket(ctx, ticket)
	if err != nil {
		return 0, err
	}
	if rec.HasEntry {
		return 0, ErrEntryExists
	}

	rec.HasEntry = true
	rec.Revision = 1
	rec.Status = status
	rec.Value = value
	rec.LastActivity = c.clock()
	rec.HasTicket = false

	newData, err := json.Marshal(rec)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if _, err := c.backend.CompareAndSwap(ctx, ticket.Key, gen, newData); err != nil {
		if errors.Is(err, ErrConflict) {
			return 0, ErrCacheTicket
		}
		return 0, err
	}
	return rec.Revision, nil
}

// UpdateEntry bumps the entry's revision and replaces status/value,
// requiring that ticket is still the exact ticket held against it.
func (c *Cache) UpdateEntry(ctx context.Context, ticket Ticket, status string, value []byte) (int64, error) {
	rec, gen, err := c.requireHeldTicket(ctx, ticket)
	if err != nil {
		return 0, err
	}
	if !rec.HasEntry {
		return 0, ErrCacheTicket
	}

	rec.Revision++
	rec.Status = status
	rec.Value = value
	rec.LastActivity = c.clock()
	rec.HasTicket = false

	newData, err := json.Marshal(rec)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if _, err := c.backend.CompareAndSwap(ctx, ticket.Key, gen, newData); err != nil {
		if errors.Is(err, ErrConflict) {
			return 0, ErrCacheTicket
		}
		return 0, err
	}
	return rec.Revision, nil
}

// RemoveEntry deletes the entry, under the same preconditions as
// UpdateEntry: ticket must still be exactly the ticket held against it.
func (c *Cache) RemoveEntry(ctx context.Context, ticket Ticket) error {
	rec, _, err := c.requireHeldTicket(ctx, ticket)
	if err != nil {
		return err
	}
	if !rec.HasEntry {
		return ErrCacheTicket
	}
	return c.backend.Delete(ctx, ticket.Key)
}

// GetEntry reads the entry at key under the read mode sel selects:
// Latest (no constraint), AtRevision (must match exactly), or ByTicket
// (must equal the ticket's revision and the ticket must still be live).
func (c *Cache) GetEntry(ctx context.Context, key string, sel EntrySelector) (Entry, error) {
	data, gen, found, err := c.backend.Load(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, ErrEntryNotFound
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Entry{}, Error.Wrap(err)
	}
	if !rec.HasEntry {
		return Entry{}, ErrEntryNotFound
	}

	switch {
	case sel.ticket != nil:
		if gen != sel.ticket.gen || !rec.HasTicket || rec.TicketRev != sel.ticket.Revision || !rec.ticketLive(c.clock()) {
			return Entry{}, ErrCacheTicket
		}
	case sel.revision != nil:
		if rec.Revision != *sel.revision {
			return Entry{}, ErrEntryNotFound
		}
	}
	return rec.entry(key), nil
}

// QueryStatus snapshot-scans every entry whose status is in statuses (or
// every entry, if statuses is empty), skipping entries with a live ticket
// unless includeOpenTickets is set.
func (c *Cache) QueryStatus(ctx context.Context, statuses []string, includeOpenTickets bool) ([]Entry, error) {
	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	now := c.clock()
	var out []Entry
	err := c.backend.Scan(ctx, func(key string, data []byte) error {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return Error.Wrap(err)
		}
		if !rec.HasEntry {
			return nil
		}
		if len(want) > 0 && !want[rec.Status] {
			return nil
		}
		if !includeOpenTickets && rec.ticketLive(now) {
			return nil
		}
		out = append(out, rec.entry(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var (
	// ErrCacheTicket reports a ticket that is expired, superseded, or no
	// longer matches the entry it was granted against.
	ErrCacheTicket = metadata.NewKindedError(metadata.KindCacheTicket, "ticket expired, superseded, or does not match the entry")
	// ErrEntryNotFound reports a job cache miss.
	ErrEntryNotFound = metadata.NewKindedError(metadata.KindCacheNotFound, "no entry for key")
	// ErrEntryExists reports addEntry called against a key that already
	// has an entry.
	ErrEntryExists = metadata.NewKindedError(metadata.KindAlreadyExists, "entry already exists for key")
)
