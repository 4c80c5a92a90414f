// Package jsonfile provides file-backed KvStore and SessionStore
// implementations. Each store is one JSON document rewritten atomically
// (write-to-temp-then-rename) on every mutation, so readers — including
// concurrent processes — never observe a torn write. Write visibility
// across processes is eventual: each process works from the state it
// loaded plus its own writes.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nevindra/axon"
)

// KvStore is a JSON-file-backed axon.KvStore. The document maps joined
// namespace paths to key -> item objects.
type KvStore struct {
	path string

	mu   sync.RWMutex
	data map[string]map[string]axon.KvItem
}

// NewKvStore opens or creates the store file, creating parent
// directories as needed. A corrupt file starts the store empty rather
// than failing open.
func NewKvStore(path string) (*KvStore, error) {
	s := &KvStore{path: path, data: make(map[string]map[string]axon.KvItem)}
	if err := loadJSON(path, &s.data); err != nil {
		return nil, err
	}
	return s, nil
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
	return s.flushLocked()
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
	return true, s.flushLocked()
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

// flushLocked writes the document atomically. Caller holds s.mu.
func (s *KvStore) flushLocked() error {
	if err := writeAtomic(s.path, s.data); err != nil {
		return &axon.ErrMemory{Op: "kv flush", Message: err.Error()}
	}
	return nil
}

// SessionStore is a JSON-file-backed axon.SessionStore. The document
// maps session ids to snapshots.
type SessionStore struct {
	path string

	mu   sync.RWMutex
	data map[string]axon.SessionSnapshot
}

// NewSessionStore opens or creates the session file.
func NewSessionStore(path string) (*SessionStore, error) {
	s := &SessionStore{path: path, data: make(map[string]axon.SessionSnapshot)}
	if err := loadJSON(path, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) Get(_ context.Context, id string) (axon.SessionSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.data[id]
	return snapshot, ok, nil
}

func (s *SessionStore) Put(_ context.Context, id string, messages []axon.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = axon.SessionSnapshot{
		SessionID: id,
		Messages:  append([]axon.ChatMessage(nil), messages...),
	}
	if err := writeAtomic(s.path, s.data); err != nil {
		return &axon.ErrMemory{Op: "session flush", Message: err.Error()}
	}
	return nil
}

func (s *SessionStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return nil
	}
	delete(s.data, id)
	if err := writeAtomic(s.path, s.data); err != nil {
		return &axon.ErrMemory{Op: "session flush", Message: err.Error()}
	}
	return nil
}

// --- file helpers ---

// loadJSON reads path into v, tolerating a missing file. A corrupt
// document is ignored so a damaged store starts empty instead of
// wedging the agent.
func loadJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &axon.ErrMemory{Op: "open", Message: err.Error()}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &axon.ErrMemory{Op: "open", Message: err.Error()}
	}
	_ = json.Unmarshal(raw, v)
	return nil
}

// writeAtomic serializes v and replaces path via temp-file rename, so
// concurrent readers always observe a complete document. Compact
// encoding keeps embedded raw values byte-identical across round trips.
func writeAtomic(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

var (
	_ axon.KvStore      = (*KvStore)(nil)
	_ axon.SessionStore = (*SessionStore)(nil)
)
