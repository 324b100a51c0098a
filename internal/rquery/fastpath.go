package rquery

import (
	"strings"
	"sync"

	"github.com/leengari/recordb/internal/parser/lexer"
)

// FastQuery is the result of successfully matching one of the two
// trivial shapes the bridge intercepts before reaching the embedded
// engine.
type FastQuery struct {
	Table string
	// HasEquality is true for "SELECT * FROM t WHERE c = ?"; false for
	// the bare "SELECT * FROM t" shape.
	HasEquality bool
	EqualityCol string
}

// ParseFastQuery attempts to match sql against exactly
// "SELECT * FROM <table>" or "SELECT * FROM <table> WHERE <col> = ?",
// case-insensitive on keywords and identifiers, tolerant of
// whitespace. Any deviation reports ok=false so the caller falls back
// to the embedded engine.
func ParseFastQuery(sql string) (FastQuery, bool) {
	toks, err := lexer.Tokenize(sql)
	if err != nil {
		return FastQuery{}, false
	}

	want := []lexer.TokenType{lexer.SELECT, lexer.ASTERISK, lexer.FROM, lexer.IDENTIFIER}
	if len(toks) < len(want) {
		return FastQuery{}, false
	}
	for i, w := range want {
		if toks[i].Type != w {
			return FastQuery{}, false
		}
	}
	table := toks[3].Literal

	if len(toks) == 4 {
		return FastQuery{Table: table}, true
	}

	rest := []lexer.TokenType{lexer.WHERE, lexer.IDENTIFIER, lexer.EQUALS, lexer.QUESTION}
	if len(toks) != 4+len(rest) {
		return FastQuery{}, false
	}
	for i, w := range rest {
		if toks[4+i].Type != w {
			return FastQuery{}, false
		}
	}
	col := toks[5].Literal

	return FastQuery{Table: table, HasEquality: true, EqualityCol: col}, true
}

// QueryCache memoizes ParseFastQuery results keyed by the raw SQL
// text, avoiding re-tokenizing identical prepared statements issued
// repeatedly.
type QueryCache struct {
	mu    sync.RWMutex
	plans map[string]cachedPlan
}

type cachedPlan struct {
	query FastQuery
	ok    bool
}

// NewQueryCache creates an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{plans: make(map[string]cachedPlan)}
}

// Lookup returns a cached parse for sql, parsing and storing it on
// first use.
func (c *QueryCache) Lookup(sql string) (FastQuery, bool) {
	c.mu.RLock()
	if p, ok := c.plans[sql]; ok {
		c.mu.RUnlock()
		return p.query, p.ok
	}
	c.mu.RUnlock()

	q, ok := ParseFastQuery(sql)

	c.mu.Lock()
	c.plans[sql] = cachedPlan{query: q, ok: ok}
	c.mu.Unlock()

	return q, ok
}

// Invalidate clears every cached parse. The bridge calls it whenever
// it registers a table (base or source sibling) or a unified view.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans = make(map[string]cachedPlan)
}

// TableHandleCache maps a lower-cased table name to a resolved handle,
// held as `any`. The bridge only invalidates it; tryFastPath resolves
// tables from the bridge's own base-table map.
type TableHandleCache struct {
	mu      sync.RWMutex
	handles map[string]any
}

// NewTableHandleCache creates an empty cache.
func NewTableHandleCache() *TableHandleCache {
	return &TableHandleCache{handles: make(map[string]any)}
}

// Lookup returns the cached handle for name (case-insensitive).
func (c *TableHandleCache) Lookup(name string) (any, bool) {
	key := strings.ToLower(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handles[key]
	return h, ok
}

// Store caches handle under name (case-insensitive).
func (c *TableHandleCache) Store(name string, handle any) {
	key := strings.ToLower(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[key] = handle
}

// Invalidate clears every cached handle.
func (c *TableHandleCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = make(map[string]any)
}
