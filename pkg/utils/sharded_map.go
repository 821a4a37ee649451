// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"hash/fnv"
	"sync"
)

const numShards = 256

// ShardedMap is a concurrent map with sharding for reduced lock contention.
// Uses FNV-1a hash to distribute keys across shards. Operations on keys in
// different shards never wait on each other, and no callback runs while a
// shard lock is held except the predicates passed to the *If methods.
type ShardedMap[V any] struct {
	shards [numShards]shard[V]
}

type shard[V any] struct {
	sync.RWMutex
	m map[string]V
}

// NewShardedMap creates a new sharded map.
func NewShardedMap[V any]() *ShardedMap[V] {
	sm := &ShardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]V)
	}
	return sm
}

func (sm *ShardedMap[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &sm.shards[h.Sum32()%numShards]
}

// Load returns the value for a key, or the zero value if not found.
func (sm *ShardedMap[V]) Load(key string) (V, bool) {
	s := sm.getShard(key)
	s.RLock()
	v, ok := s.m[key]
	s.RUnlock()
	return v, ok
}

// Store sets a value for a key.
func (sm *ShardedMap[V]) Store(key string, value V) {
	s := sm.getShard(key)
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

// Swap stores value and returns the previous value, if any, atomically.
func (sm *ShardedMap[V]) Swap(key string, value V) (V, bool) {
	s := sm.getShard(key)
	s.Lock()
	prev, loaded := s.m[key]
	s.m[key] = value
	s.Unlock()
	return prev, loaded
}

// LoadOrStore returns the existing value if present, otherwise stores and returns the new value.
// Returns true if the value was loaded, false if stored.
func (sm *ShardedMap[V]) LoadOrStore(key string, value V) (V, bool) {
	s := sm.getShard(key)
	s.Lock()
	defer s.Unlock()
	if v, ok := s.m[key]; ok {
		return v, true
	}
	s.m[key] = value
	return value, false
}

// LoadAndDelete removes key and returns the value it held.
func (sm *ShardedMap[V]) LoadAndDelete(key string) (V, bool) {
	s := sm.getShard(key)
	s.Lock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	s.Unlock()
	return v, ok
}

// Delete removes a key from the map.
func (sm *ShardedMap[V]) Delete(key string) {
	s := sm.getShard(key)
	s.Lock()
	delete(s.m, key)
	s.Unlock()
}

// DeleteKeyIf removes key only when pred accepts its current value.
func (sm *ShardedMap[V]) DeleteKeyIf(key string, pred func(V) bool) bool {
	s := sm.getShard(key)
	s.Lock()
	defer s.Unlock()
	v, ok := s.m[key]
	if !ok || !pred(v) {
		return false
	}
	delete(s.m, key)
	return true
}

// Compute sets key to the result of fn, which receives the current value.
// Returning keep=false removes the key. fn runs under the shard lock and must
// not call back into the map.
func (sm *ShardedMap[V]) Compute(key string, fn func(old V, loaded bool) (V, bool)) (V, bool) {
	s := sm.getShard(key)
	s.Lock()
	defer s.Unlock()
	old, loaded := s.m[key]
	v, keep := fn(old, loaded)
	if keep {
		s.m[key] = v
	} else {
		delete(s.m, key)
	}
	return v, keep
}

// Range calls f for each key-value pair in the map.
// If f returns false, iteration stops. Each shard is copied before f runs,
// so f may call back into the map.
func (sm *ShardedMap[V]) Range(f func(key string, value V) bool) {
	type kv struct {
		k string
		v V
	}
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		snapshot := make([]kv, 0, len(s.m))
		for k, v := range s.m {
			snapshot = append(snapshot, kv{k, v})
		}
		s.RUnlock()
		for _, e := range snapshot {
			if !f(e.k, e.v) {
				return
			}
		}
	}
}

// Len returns the total number of entries across all shards.
func (sm *ShardedMap[V]) Len() int {
	count := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		count += len(s.m)
		s.RUnlock()
	}
	return count
}

// Clear removes all entries from the map.
func (sm *ShardedMap[V]) Clear() {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.Lock()
		s.m = make(map[string]V)
		s.Unlock()
	}
}
