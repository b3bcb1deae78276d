package routing

import (
	"sort"
	"sync"
	"time"
)

// RouteStatistics counts guard outcomes for one route target
type RouteStatistics struct {
	Path         string `json:"path"`
	Allowed      int64  `json:"allowed"`
	Redirected   int64  `json:"redirected"`
	NotFound     int64  `json:"notFound"`
	FirstVisited int64  `json:"firstVisited"`
	LastVisited  int64  `json:"lastVisited"`
	LastAction   Action `json:"lastAction"`
	LastRedirect string `json:"lastRedirect,omitempty"`
}

// StatisticsTracker tracks guard decisions per requested path
type StatisticsTracker struct {
	mu    sync.RWMutex
	stats map[string]*RouteStatistics
	now   func() time.Time
}

// NewStatisticsTracker creates a new statistics tracker
func NewStatisticsTracker() *StatisticsTracker {
	return &StatisticsTracker{
		stats: make(map[string]*RouteStatistics),
		now:   time.Now,
	}
}

// Record counts d against the path the user asked for
func (st *StatisticsTracker) Record(d Decision) {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := normalizePath(d.From)
	stats, exists := st.stats[key]
	if !exists {
		stats = &RouteStatistics{Path: key}
		st.stats[key] = stats
	}

	switch d.Action {
	case ActionAllow:
		stats.Allowed++
	case ActionNotFound:
		stats.NotFound++
	default:
		stats.Redirected++
		stats.LastRedirect = d.Path
	}
	stats.LastAction = d.Action
	stats.LastVisited = st.now().UnixMilli()
	if stats.FirstVisited == 0 {
		stats.FirstVisited = stats.LastVisited
	}
}

// Get returns a copy of the statistics for path
func (st *StatisticsTracker) Get(path string) *RouteStatistics {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if stats, exists := st.stats[normalizePath(path)]; exists {
		statsCopy := *stats
		return &statsCopy
	}
	return nil
}

// All returns copies of every entry ordered by path
func (st *StatisticsTracker) All() []RouteStatistics {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]RouteStatistics, 0, len(st.stats))
	for _, stats := range st.stats {
		result = append(result, *stats)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

// Reset clears all statistics
func (st *StatisticsTracker) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stats = make(map[string]*RouteStatistics)
}
