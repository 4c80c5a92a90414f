package axon

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// KvItem is one record of the long-term key-value store. Every item
// carries its owning namespace path; an item is visible only to readers
// that name that exact path.
type KvItem struct {
	Namespace  []string        `json:"namespace"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
	Importance float64         `json:"importance,omitempty"`
	// Score is populated only on Search results.
	Score float64 `json:"score,omitempty"`
}

// KvStore is the namespaced long-term memory interface. Handles may be
// shared across drivers; implementations serialize writes and allow
// concurrent reads. Writes are totally ordered per key within a single
// process; cross-process visibility is eventual.
type KvStore interface {
	// Put writes or updates a record (upsert).
	Put(ctx context.Context, namespace []string, key string, value json.RawMessage, importance float64) error
	// Get returns the record under key, if present.
	Get(ctx context.Context, namespace []string, key string) (KvItem, bool, error)
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, namespace []string, key string) (bool, error)
	// ListNamespaces returns all namespace paths matching the prefix.
	// A nil prefix matches everything.
	ListNamespaces(ctx context.Context, prefix []string) ([][]string, error)
	// Search returns up to limit items ranked by keyword relevance.
	Search(ctx context.Context, namespace []string, query string, limit int) ([]KvItem, error)
}

// NamespaceSep joins namespace segments in persisted documents. It may
// not appear inside a segment.
const NamespaceSep = "/"

// JoinNamespace flattens a namespace path for use as a map key.
func JoinNamespace(namespace []string) string {
	return strings.Join(namespace, NamespaceSep)
}

// SplitNamespace is the inverse of JoinNamespace.
func SplitNamespace(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, NamespaceSep)
}

// --- keyword search scoring, shared by the store backends ---

var queryFolder = cases.Fold()

// TokenizeQuery splits a query into case-folded keyword tokens,
// deduplicated, dropping single-rune noise.
func TokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '.' ||
			r == '!' || r == '?' || r == ';' || r == ':'
	})
	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		folded := queryFolder.String(f)
		if len([]rune(folded)) < 2 || seen[folded] {
			continue
		}
		seen[folded] = true
		tokens = append(tokens, folded)
	}
	return tokens
}

// ScoreItem computes keyword relevance of an item's value against the
// tokenized query: fraction of tokens present in the value's searchable
// text. An empty query matches everything with score 1.
func ScoreItem(item KvItem, tokens []string) float64 {
	if len(tokens) == 0 {
		return 1
	}
	text := queryFolder.String(searchableText(item.Value))
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(len(tokens))
}

// RankItems orders scored items for Search: items matching every token
// (score 1) come first, the rest by descending score (the fraction of
// query tokens matched);
// ties break by descending importance, then descending recency.
func RankItems(items []KvItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].Importance != items[j].Importance {
			return items[i].Importance > items[j].Importance
		}
		return items[i].CreatedAt > items[j].CreatedAt
	})
}

// searchableText flattens a JSON value into matchable text.
func searchableText(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	var b strings.Builder
	flattenValue(&b, v)
	return b.String()
}

func flattenValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case string:
		b.WriteString(val)
		b.WriteByte(' ')
	case []any:
		for _, e := range val {
			flattenValue(b, e)
		}
	case map[string]any:
		for _, e := range val {
			flattenValue(b, e)
		}
	case json.Number:
		b.WriteString(val.String())
		b.WriteByte(' ')
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
		b.WriteByte(' ')
	case bool:
		if val {
			b.WriteString("true ")
		} else {
			b.WriteString("false ")
		}
	}
}
