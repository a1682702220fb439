// Package session holds the memory of a single browsing run: which
// selectors have already produced a navigation and which URLs have
// already been reached. Sets only grow; a failed click never records
// its selector.
package session

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Memory is shared across sequential resolution calls within one run.
// The backing sets are thread-safe, but callers are expected to keep a
// single-writer discipline: the resolver checks membership and inserts
// later, non-atomically.
type Memory struct {
	clicked mapset.Set[string]
	visited mapset.Set[string]
}

func NewMemory() *Memory {
	return &Memory{
		clicked: mapset.NewSet[string](),
		visited: mapset.NewSet[string](),
	}
}

// Clicked reports whether a selector string already produced a
// successful navigation in this run.
func (m *Memory) Clicked(sel string) bool { return m.clicked.Contains(sel) }

// MarkClicked records a selector after a successful navigating click.
func (m *Memory) MarkClicked(sel string) {
	if sel != "" {
		m.clicked.Add(sel)
	}
}

// Visited reports whether an absolute URL was already reached.
func (m *Memory) Visited(url string) bool { return m.visited.Contains(url) }

// MarkVisited records an absolute URL as reached.
func (m *Memory) MarkVisited(url string) {
	if url != "" {
		m.visited.Add(url)
	}
}

// ClickedSelectors returns a sorted copy, for run snapshots.
func (m *Memory) ClickedSelectors() []string { return sorted(m.clicked) }

// VisitedURLs returns a sorted copy, for run snapshots.
func (m *Memory) VisitedURLs() []string { return sorted(m.visited) }

func sorted(s mapset.Set[string]) []string {
	out := s.ToSlice()
	sort.Strings(out)
	return out
}
