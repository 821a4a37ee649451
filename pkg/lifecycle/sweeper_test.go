// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/internaltools/credshare/pkg/audit"
	memdb "github.com/internaltools/credshare/pkg/metadata/db/memory"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/storage/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObjects struct {
	calls atomic.Int64
	err   error
}

func (c *countingObjects) SweepExpired(context.Context) (objstore.SweepResult, error) {
	c.calls.Add(1)
	return objstore.SweepResult{Objects: 2, Uploads: 1}, c.err
}

type countingLogs struct {
	calls atomic.Int64
	err   error
}

func (c *countingLogs) SweepExpiredLogs(context.Context) (int, error) {
	c.calls.Add(1)
	return 3, c.err
}

func fixedConfig() Config {
	return Config{
		ObjectInterval: 5 * time.Minute,
		LogInterval:    time.Hour,
		Jitter:         -1,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, DefaultObjectInterval, cfg.ObjectInterval)
	assert.Equal(t, DefaultLogInterval, cfg.LogInterval)
	assert.Equal(t, DefaultJitter, cfg.Jitter)
	assert.Equal(t, DefaultRunTimeout, cfg.RunTimeout)

	cfg = Config{Jitter: -0.5}
	cfg.Validate()
	assert.Zero(t, cfg.Jitter)
}

func TestSweeper_IndependentTimers(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		objs, logs := &countingObjects{}, &countingLogs{}
		s := NewSweeper(fixedConfig(), objs, logs)
		s.Start(t.Context())
		defer s.Stop()

		time.Sleep(4 * time.Minute)
		synctest.Wait()
		assert.Zero(t, objs.calls.Load(), "first run waits one interval")

		time.Sleep(57 * time.Minute)
		synctest.Wait()
		assert.Equal(t, int64(12), objs.calls.Load())
		assert.Equal(t, int64(1), logs.calls.Load())
	})
}

func TestSweeper_ErrorsAreNotFatal(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		objs := &countingObjects{err: errors.New("backend down")}
		s := NewSweeper(fixedConfig(), objs, nil)
		s.Start(t.Context())
		defer s.Stop()

		time.Sleep(16 * time.Minute)
		synctest.Wait()
		assert.Equal(t, int64(3), objs.calls.Load())
	})
}

func TestSweeper_StopWaits(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		objs := &countingObjects{}
		s := NewSweeper(fixedConfig(), objs, &countingLogs{})
		s.Start(t.Context())
		s.Start(t.Context())
		s.Stop()
		s.Stop()

		time.Sleep(time.Hour)
		assert.Zero(t, objs.calls.Load())
	})
}

func TestSweeper_RunOnce(t *testing.T) {
	t.Parallel()

	s := NewSweeper(fixedConfig(), &countingObjects{}, &countingLogs{})
	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Objects: 2, Uploads: 1, Logs: 3}, res)

	errLogs := errors.New("clickhouse down")
	s = NewSweeper(fixedConfig(), &countingObjects{}, &countingLogs{err: errLogs})
	res, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, errLogs)
	assert.Equal(t, 2, res.Objects, "object sweep still reported")

	res, err = NewSweeper(fixedConfig(), nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestSweeper_PurgesStoreAndLog(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		auditLog := audit.New(audit.DefaultConfig(), audit.NewMemoryStore())
		defer auditLog.Stop()

		blobs := backend.NewMemoryStorage()
		store := objstore.New(objstore.DefaultConfig(), memdb.New(), blobs, objstore.WithAuditor(auditLog))

		_, err := store.Put(t.Context(), "creds.env", strings.NewReader("secret"), objstore.PutOptions{})
		require.NoError(t, err)
		_, err = store.CreateMultipartUpload(t.Context(), "partial", objstore.PutOptions{})
		require.NoError(t, err)

		s := NewSweeper(fixedConfig(), store, auditLog)
		s.Start(t.Context())

		time.Sleep(24*time.Hour + 10*time.Minute)
		synctest.Wait()
		s.Stop()

		assert.Zero(t, blobs.Len())
		_, err = store.Head(t.Context(), "creds.env")
		assert.ErrorIs(t, err, objstore.ErrNotFound)

		require.NoError(t, auditLog.Flush(t.Context()))
		got, err := auditLog.Query(t.Context(), audit.Query{})
		require.NoError(t, err)
		var kinds []audit.EventType
		for _, e := range got {
			kinds = append(kinds, e.Event)
		}
		assert.ElementsMatch(t, []audit.EventType{audit.EventUpload, audit.EventAbort, audit.EventExpire}, kinds)
	})
}
