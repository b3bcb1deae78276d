package routing

import (
	"strings"
	"sync"
)

// compiledPattern is a route pattern split into segments. A ":name" segment
// captures one path segment; a trailing "*" captures the rest of the path.
type compiledPattern struct {
	segments []string
	wildcard bool
}

// PatternMatcher matches paths against route patterns. Compiled patterns
// and match results are cached.
type PatternMatcher struct {
	mu           sync.RWMutex
	patternCache map[string]*compiledPattern
	resultCache  *LRUCache
}

type matchResult struct {
	ok     bool
	params map[string]string
}

// NewPatternMatcher creates a matcher whose result cache holds up to
// cacheSize entries
func NewPatternMatcher(cacheSize int) *PatternMatcher {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &PatternMatcher{
		patternCache: make(map[string]*compiledPattern),
		resultCache:  NewLRUCache(cacheSize),
	}
}

// Validate reports whether pattern is well formed
func (pm *PatternMatcher) Validate(pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		return &RoutingError{Code: ErrCodeValidation, Message: "Pattern must start with /", Path: pattern}
	}
	segments := splitPath(pattern)
	for i, seg := range segments {
		if seg == "*" && i != len(segments)-1 {
			return &RoutingError{Code: ErrCodeValidation, Message: "Wildcard must be the last segment", Path: pattern}
		}
		if seg == ":" {
			return &RoutingError{Code: ErrCodeValidation, Message: "Parameter segment has no name", Path: pattern}
		}
	}
	return nil
}

// Match reports whether path matches pattern and returns the captured
// parameters. A wildcard capture is stored under "*".
func (pm *PatternMatcher) Match(pattern, path string) (map[string]string, bool) {
	path = normalizePath(path)
	cacheKey := pattern + "\x00" + path
	if cached, found := pm.resultCache.Get(cacheKey); found {
		res := cached.(matchResult)
		return copyParams(res.params), res.ok
	}

	compiled := pm.compile(pattern)
	params, ok := compiled.match(splitPath(path))
	pm.resultCache.Put(cacheKey, matchResult{ok: ok, params: params})
	return copyParams(params), ok
}

// ClearCache drops compiled patterns and cached results
func (pm *PatternMatcher) ClearCache() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.patternCache = make(map[string]*compiledPattern)
	pm.resultCache.Clear()
}

func (pm *PatternMatcher) compile(pattern string) *compiledPattern {
	pm.mu.RLock()
	if compiled, exists := pm.patternCache[pattern]; exists {
		pm.mu.RUnlock()
		return compiled
	}
	pm.mu.RUnlock()

	segments := splitPath(pattern)
	compiled := &compiledPattern{segments: segments}
	if n := len(segments); n > 0 && segments[n-1] == "*" {
		compiled.wildcard = true
		compiled.segments = segments[:n-1]
	}

	pm.mu.Lock()
	pm.patternCache[pattern] = compiled
	pm.mu.Unlock()
	return compiled
}

func (c *compiledPattern) match(parts []string) (map[string]string, bool) {
	if c.wildcard {
		if len(parts) < len(c.segments) {
			return nil, false
		}
	} else if len(parts) != len(c.segments) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range c.segments {
		if strings.HasPrefix(seg, ":") {
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:]] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}

	if c.wildcard {
		if params == nil {
			params = make(map[string]string)
		}
		params["*"] = strings.Join(parts[len(c.segments):], "/")
	}
	return params, true
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func copyParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// LRUCache is a simple LRU cache implementation
type LRUCache struct {
	capacity int
	cache    map[string]*cacheEntry
	head     *cacheEntry
	tail     *cacheEntry
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value interface{}
	prev  *cacheEntry
	next  *cacheEntry
}

// NewLRUCache creates a new LRU cache
func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		cache:    make(map[string]*cacheEntry),
	}
}

// Len returns the number of cached entries
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Get retrieves a value from cache
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.cache[key]; exists {
		c.unlink(entry)
		c.pushFront(entry)
		return entry.value, true
	}
	return nil, false
}

// Put adds a value to cache
func (c *LRUCache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.cache[key]; exists {
		entry.value = value
		c.unlink(entry)
		c.pushFront(entry)
		return
	}

	entry := &cacheEntry{key: key, value: value}
	c.cache[key] = entry
	c.pushFront(entry)

	if len(c.cache) > c.capacity && c.tail != nil {
		evicted := c.tail
		c.unlink(evicted)
		delete(c.cache, evicted.key)
	}
}

// Clear clears the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cacheEntry)
	c.head = nil
	c.tail = nil
}

func (c *LRUCache) unlink(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

func (c *LRUCache) pushFront(entry *cacheEntry) {
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}
