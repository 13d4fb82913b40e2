package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// HallEntry records one notable genome with its provenance.
type HallEntry struct {
	Genome      []float32 `json:"genome"`
	Fitness     float32   `json:"fitness"`
	Generation  int       `json:"generation"`
	Distance    float32   `json:"distance"`
	Checkpoints int       `json:"checkpoints"`
	ReachedGoal bool      `json:"reached_goal"`
}

// HallOfFame keeps the best genomes seen across a run, sorted by
// fitness descending. Capacity is fixed; weaker entries fall off the
// end.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
}

// NewHallOfFame creates a hall with the given capacity.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Consider inserts the entry in fitness order. An entry that would rank
// below a full hall, or that duplicates an existing genome at the same
// fitness, is skipped. Returns true if the entry was added.
func (hof *HallOfFame) Consider(entry HallEntry) bool {
	// Find insertion point (sorted descending by fitness)
	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].Fitness < entry.Fitness
	})

	if len(hof.entries) >= hof.maxSize && idx >= hof.maxSize {
		return false
	}

	// Elites carry over between generations, so the same genome gets
	// considered again at the same fitness. Equal-fitness entries sit
	// directly above the insertion point.
	for i := idx - 1; i >= 0 && hof.entries[i].Fitness == entry.Fitness; i-- {
		if equalGenome(hof.entries[i].Genome, entry.Genome) {
			return false
		}
	}

	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry

	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}

	return true
}

func equalGenome(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Entries returns the hall best-first. The slice is shared, not copied.
func (hof *HallOfFame) Entries() []HallEntry {
	return hof.entries
}

// Size returns the number of entries currently in the hall.
func (hof *HallOfFame) Size() int {
	return len(hof.entries)
}

// Top returns the best entry. ok is false when the hall is empty.
func (hof *HallOfFame) Top() (HallEntry, bool) {
	if len(hof.entries) == 0 {
		return HallEntry{}, false
	}
	return hof.entries[0], true
}

// MarshalJSON serializes the hall best-first.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(hof.entries, "", "  ")
}

// LoadHallOfFame reads a hall JSON file written by a previous run.
func LoadHallOfFame(path string) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var entries []HallEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	maxSize := len(entries)
	if maxSize < 16 {
		maxSize = 16
	}

	hof := NewHallOfFame(maxSize)
	for _, e := range entries {
		hof.Consider(e)
	}
	return hof, nil
}
