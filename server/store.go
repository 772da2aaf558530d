package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/P40-traveler/pathce/pkg/summary"
)

// SummaryInfo is the metadata the API reports for a stored summary.
type SummaryInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	NumColors int       `json:"num_colors"`
	Entries   int       `json:"entries"`
	Scheme    string    `json:"scheme"`
}

type storedSummary struct {
	info    SummaryInfo
	summary *summary.Summary
}

// Store holds built summaries in memory, keyed by uuid. Summaries are
// immutable once stored; the lock guards only the map.
type Store struct {
	mu        sync.RWMutex
	summaries map[string]*storedSummary
}

func NewStore() *Store {
	return &Store{summaries: make(map[string]*storedSummary)}
}

// Put registers a summary and returns its generated id.
func (s *Store) Put(name string, sum *summary.Summary) SummaryInfo {
	info := SummaryInfo{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		NumColors: sum.NumColors,
		Entries:   len(sum.Stats.Keys),
		Scheme:    sum.Params.Scheme.String(),
	}
	s.mu.Lock()
	s.summaries[info.ID] = &storedSummary{info: info, summary: sum}
	s.mu.Unlock()
	return info
}

// Get returns the summary for an id.
func (s *Store) Get(id string) (*summary.Summary, SummaryInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.summaries[id]
	if !ok {
		return nil, SummaryInfo{}, false
	}
	return st.summary, st.info, true
}

// Delete removes a summary; it reports whether the id existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.summaries[id]; !ok {
		return false
	}
	delete(s.summaries, id)
	return true
}

// List returns metadata for all stored summaries, newest first.
func (s *Store) List() []SummaryInfo {
	s.mu.RLock()
	infos := make([]SummaryInfo, 0, len(s.summaries))
	for _, st := range s.summaries {
		infos = append(infos, st.info)
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos
}
