// Package memory provides in-process KvStore and SessionStore backends.
// Nothing is persisted; suitable for tests and short-lived agents.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/nevindra/axon"
)

// KvStore is an in-memory axon.KvStore.
type KvStore struct {
	mu sync.RWMutex
	// namespace key (joined) -> item key -> item
	data map[string]map[string]axon.KvItem
}

// NewKvStore creates an empty in-memory KV store.
func NewKvStore() *KvStore {
	return &KvStore{data: make(map[string]map[string]axon.KvItem)}
}

func (s *KvStore) Put(_ context.Context, namespace []string, key string, value json.RawMessage, importance float64) error {
	ns := axon.JoinNamespace(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[ns]
	if !ok {
		bucket = make(map[string]axon.KvItem)
		s.data[ns] = bucket
	}
	now := axon.NowUnix()
	item, exists := bucket[key]
	if exists {
		item.Value = append(json.RawMessage(nil), value...)
		item.UpdatedAt = now
		item.Importance = importance
	} else {
		item = axon.KvItem{
			Namespace:  append([]string(nil), namespace...),
			Key:        key,
			Value:      append(json.RawMessage(nil), value...),
			CreatedAt:  now,
			UpdatedAt:  now,
			Importance: importance,
		}
	}
	bucket[key] = item
	return nil
}

func (s *KvStore) Get(_ context.Context, namespace []string, key string) (axon.KvItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.data[axon.JoinNamespace(namespace)][key]
	return item, ok, nil
}

func (s *KvStore) Delete(_ context.Context, namespace []string, key string) (bool, error) {
	ns := axon.JoinNamespace(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[ns]
	if !ok {
		return false, nil
	}
	if _, exists := bucket[key]; !exists {
		return false, nil
	}
	delete(bucket, key)
	return true, nil
}

func (s *KvStore) ListNamespaces(_ context.Context, prefix []string) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefixJoined := axon.JoinNamespace(prefix)
	var out [][]string
	for ns := range s.data {
		if prefixJoined != "" && ns != prefixJoined &&
			!strings.HasPrefix(ns, prefixJoined+axon.NamespaceSep) {
			continue
		}
		out = append(out, axon.SplitNamespace(ns))
	}
	sort.Slice(out, func(i, j int) bool {
		return axon.JoinNamespace(out[i]) < axon.JoinNamespace(out[j])
	})
	return out, nil
}

func (s *KvStore) Search(_ context.Context, namespace []string, query string, limit int) ([]axon.KvItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.data[axon.JoinNamespace(namespace)]
	if !ok {
		return nil, nil
	}
	tokens := axon.TokenizeQuery(query)
	var scored []axon.KvItem
	for _, item := range bucket {
		score := axon.ScoreItem(item, tokens)
		if score == 0 {
			continue
		}
		item.Score = score
		scored = append(scored, item)
	}
	axon.RankItems(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// SessionStore is an in-memory axon.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]axon.ChatMessage
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string][]axon.ChatMessage)}
}

func (s *SessionStore) Get(_ context.Context, id string) (axon.SessionSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages, ok := s.sessions[id]
	if !ok {
		return axon.SessionSnapshot{}, false, nil
	}
	return axon.SessionSnapshot{
		SessionID: id,
		Messages:  append([]axon.ChatMessage(nil), messages...),
	}, true, nil
}

func (s *SessionStore) Put(_ context.Context, id string, messages []axon.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = append([]axon.ChatMessage(nil), messages...)
	return nil
}

func (s *SessionStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

var (
	_ axon.KvStore      = (*KvStore)(nil)
	_ axon.SessionStore = (*SessionStore)(nil)
)
