/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Store is the sole source of truth for session state. Records carry a TTL
// so abandoned games clean themselves up; an expired record is
// indistinguishable from a deleted one. Get returns ErrGameNotFound for
// missing or expired ids.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, session *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Close() error
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in-process. Records are held serialized, so
// every Get hands back an independent copy and the write path exercises the
// same JSON boundary as the persistent store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	done    chan struct{}
}

func NewMemoryStore(reapInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	if reapInterval > 0 {
		go s.reaperLoop(reapInterval)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok && time.Now().After(entry.expiresAt) {
		delete(s.entries, id)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrGameNotFound
	}

	var session Session
	if err := json.Unmarshal(entry.payload, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (s *MemoryStore) Set(_ context.Context, session *Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[session.ID] = memoryEntry{
		payload:   payload,
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Close() error {
	close(s.done)

	return nil
}

// reaperLoop periodically drops expired records so idle games don't pin
// memory between reads.
func (s *MemoryStore) reaperLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()

			s.mu.Lock()
			for id, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
