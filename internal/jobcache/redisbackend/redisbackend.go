// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package redisbackend is a Redis-backed jobcache.Backend, for deployments
// where the job cache must survive an orchestrator restart or be shared
// across orchestrator replicas. Grounded on storj-storj's
// private/kvstore/redis client: an OpenClient(ctx, addr, password, db)
// constructor wrapping go-redis, returning a client that satisfies the
// shared Backend/Store interface.
package redisbackend

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/zeebo/errs"

	"github.com/trac-platform/trac/internal/jobcache"
)

// Error is the error class for unexpected redisbackend failures.
var Error = errs.Class("redisbackend")

const keyPrefix = "trac-jobcache:"

// envelope is the JSON value actually stored at a Redis key: the
// jobcache record bytes plus the compare-and-swap generation.
type envelope struct {
	Gen  uint64 `json:"gen"`
	Data []byte `json:"data"`
}

// Store is a jobcache.Backend over a Redis client.
type Store struct {
	client *redis.Client
}

// OpenClient dials addr/db (authenticating with password if non-empty)
// and verifies the connection with a PING before returning.
func OpenClient(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func redisKey(key string) string {
	return keyPrefix + key
}

// Load implements jobcache.Backend.
func (s *Store) Load(ctx context.Context, key string) ([]byte, uint64, bool, error) {
	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, Error.Wrap(err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, false, Error.Wrap(err)
	}
	return env.Data, env.Gen, true, nil
}

// CompareAndSwap implements jobcache.Backend using a WATCH/MULTI/EXEC
// transaction: the watched key's value is re-checked against expectGen
// immediately before the write commits, so a concurrent writer between
// our GET and SET aborts the transaction instead of silently losing an
// update.
func (s *Store) CompareAndSwap(ctx context.Context, key string, expectGen uint64, data []byte) (uint64, error) {
	rkey := redisKey(key)
	var newGen uint64

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, rkey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectGen != 0 {
				return jobcache.ErrConflict
			}
		case err != nil:
			return Error.Wrap(err)
		default:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return Error.Wrap(err)
			}
			if expectGen == 0 || env.Gen != expectGen {
				return jobcache.ErrConflict
			}
		}

		newGen = expectGen + 1
		payload, err := json.Marshal(envelope{Gen: newGen, Data: data})
		if err != nil {
			return Error.Wrap(err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, payload, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, rkey)
	switch {
	case err == nil:
		return newGen, nil
	case errors.Is(err, jobcache.ErrConflict), errors.Is(err, redis.TxFailedErr):
		return 0, jobcache.ErrConflict
	default:
		return 0, Error.Wrap(err)
	}
}

// Delete implements jobcache.Backend.
func (s *Store) Delete(ctx context.Context, key string) error {
	return Error.Wrap(s.client.Del(ctx, redisKey(key)).Err())
}

// Scan implements jobcache.Backend with a non-blocking SCAN over the
// trac-jobcache: keyspace, rather than KEYS, so it doesn't stall other
// clients against a large cache.
func (s *Store) Scan(ctx context.Context, fn func(key string, data []byte) error) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		data, _, found, err := s.Load(ctx, strings.TrimPrefix(full, keyPrefix))
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := fn(strings.TrimPrefix(full, keyPrefix), data); err != nil {
			return err
		}
	}
	return Error.Wrap(iter.Err())
}
