// Package schedule holds the canonical ordered grid of bookable time-of-day
// slots. The grid is loaded once at startup and read-only afterwards.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Grid is the canonical ordered sequence of HH:MM slot strings.
type Grid struct {
	slots []string
	index map[string]struct{}
}

type gridFile struct {
	Horarios []string `json:"horarios"`
}

// Load reads the grid from a JSON file of the form {"horarios": ["09:00", ...]}.
func Load(path string) (*Grid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	var f gridFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse schedule file: %w", err)
	}
	return New(f.Horarios)
}

// New builds a grid from an ordered slot list, validating each entry.
func New(slots []string) (*Grid, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("schedule grid is empty")
	}
	g := &Grid{
		slots: make([]string, 0, len(slots)),
		index: make(map[string]struct{}, len(slots)),
	}
	var prev time.Time
	for i, s := range slots {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return nil, fmt.Errorf("slot %q is not HH:MM", s)
		}
		if _, dup := g.index[s]; dup {
			return nil, fmt.Errorf("duplicate slot %q", s)
		}
		if i > 0 && !t.After(prev) {
			return nil, fmt.Errorf("slots out of order at %q", s)
		}
		prev = t
		g.slots = append(g.slots, s)
		g.index[s] = struct{}{}
	}
	return g, nil
}

// Default is the built-in service window: 09:00 through 16:30 in 30-minute
// steps, used when no schedule file is configured.
func Default() *Grid {
	var slots []string
	start := time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(0, 1, 1, 17, 0, 0, 0, time.UTC)
	for t := start; t.Before(end); t = t.Add(30 * time.Minute) {
		slots = append(slots, t.Format("15:04"))
	}
	g, err := New(slots)
	if err != nil {
		panic(err) // static input
	}
	return g
}

// Slots returns the grid in canonical order.
func (g *Grid) Slots() []string {
	out := make([]string, len(g.slots))
	copy(out, g.slots)
	return out
}

func (g *Grid) Len() int {
	return len(g.slots)
}

// Contains reports whether hora is a bookable slot.
func (g *Grid) Contains(hora string) bool {
	_, ok := g.index[hora]
	return ok
}

// Available subtracts the taken hours from the grid, preserving canonical
// order. An empty result is a valid answer, not an error.
func (g *Grid) Available(taken []string) []string {
	busy := make(map[string]struct{}, len(taken))
	for _, h := range taken {
		busy[h] = struct{}{}
	}
	open := make([]string, 0, len(g.slots))
	for _, s := range g.slots {
		if _, held := busy[s]; !held {
			open = append(open, s)
		}
	}
	return open
}
