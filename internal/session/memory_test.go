package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryClicked(t *testing.T) {
	m := NewMemory()
	assert.False(t, m.Clicked("#apply"))

	m.MarkClicked("#apply")
	assert.True(t, m.Clicked("#apply"))
	assert.False(t, m.Clicked("#other"))

	// Idempotent.
	m.MarkClicked("#apply")
	assert.Equal(t, []string{"#apply"}, m.ClickedSelectors())
}

func TestMemoryVisited(t *testing.T) {
	m := NewMemory()
	assert.False(t, m.Visited("https://bank.example/apply"))

	m.MarkVisited("https://bank.example/apply")
	assert.True(t, m.Visited("https://bank.example/apply"))
	assert.False(t, m.Visited("https://bank.example/"))
}

func TestMemoryIgnoresEmpty(t *testing.T) {
	m := NewMemory()
	m.MarkClicked("")
	m.MarkVisited("")
	assert.Empty(t, m.ClickedSelectors())
	assert.Empty(t, m.VisitedURLs())
	assert.False(t, m.Clicked(""))
	assert.False(t, m.Visited(""))
}

func TestMemorySnapshotsSorted(t *testing.T) {
	m := NewMemory()
	m.MarkClicked(".zeta")
	m.MarkClicked("#alpha")
	m.MarkClicked("[data-test='m']")
	assert.Equal(t, []string{"#alpha", ".zeta", "[data-test='m']"}, m.ClickedSelectors())

	m.MarkVisited("https://b.example/")
	m.MarkVisited("https://a.example/")
	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, m.VisitedURLs())
}
