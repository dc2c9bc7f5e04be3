package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// StateVersion is the schema version written by this package.
const StateVersion = 1

// State is the durable scheduler record.
type State struct {
	Version                      int                      `json:"version"`
	Schedules                    map[int64]model.Schedule `json:"schedules"`
	IncompleteInitialPublication *model.Publication       `json:"incomplete_initial_publication,omitempty"`
	IncompleteUpdatePublication  *model.Publication       `json:"incomplete_update_publication,omitempty"`
	FlexibilityProviders         []string                 `json:"flexibility_providers"`
	EnabledSubscribers           []string                 `json:"enabled_subscribers"`
	Enabled                      bool                     `json:"enabled"`
	TargetCharge                 *model.TargetCharge      `json:"target_charge,omitempty"`
	LatestInitialPublication     int64                    `json:"latest_initial_publication"`
	LatestUpdatePublication      int64                    `json:"latest_update_publication"`
	LatestComplianceOptimization int64                    `json:"latest_compliance_optimization"`
}

// NewState returns an empty state of the current version. A fresh gateway
// starts enabled.
func NewState() State {
	return State{Version: StateVersion, Schedules: map[int64]model.Schedule{}, Enabled: true}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Schedules = make(map[int64]model.Schedule, len(s.Schedules))
	for k, v := range s.Schedules {
		c.Schedules[k] = v.Clone()
	}
	if s.IncompleteInitialPublication != nil {
		p := s.IncompleteInitialPublication.Clone()
		c.IncompleteInitialPublication = &p
	}
	if s.IncompleteUpdatePublication != nil {
		p := s.IncompleteUpdatePublication.Clone()
		c.IncompleteUpdatePublication = &p
	}
	c.FlexibilityProviders = append([]string(nil), s.FlexibilityProviders...)
	c.EnabledSubscribers = append([]string(nil), s.EnabledSubscribers...)
	if s.TargetCharge != nil {
		t := *s.TargetCharge
		c.TargetCharge = &t
	}
	return c
}

// Incomplete returns the incomplete record of kind.
func (s *State) Incomplete(kind model.PublicationKind) *model.Publication {
	if kind == model.PublicationInitial {
		return s.IncompleteInitialPublication
	}
	return s.IncompleteUpdatePublication
}

// SetIncomplete stores or clears (p == nil) the record of kind.
func (s *State) SetIncomplete(kind model.PublicationKind, p *model.Publication) {
	if kind == model.PublicationInitial {
		s.IncompleteInitialPublication = p
		return
	}
	s.IncompleteUpdatePublication = p
}

// DropExpired clears incomplete records whose horizon ended before now and
// returns the dropped kinds.
func (s *State) DropExpired(now int64) []model.PublicationKind {
	var dropped []model.PublicationKind
	for _, kind := range []model.PublicationKind{model.PublicationUpdate, model.PublicationInitial} {
		if p := s.Incomplete(kind); p != nil && p.Expired(now) {
			s.SetIncomplete(kind, nil)
			dropped = append(dropped, kind)
		}
	}
	return dropped
}

// AdoptSchedule commits sched under its starting time.
func (s *State) AdoptSchedule(sched model.Schedule) {
	if s.Schedules == nil {
		s.Schedules = map[int64]model.Schedule{}
	}
	s.Schedules[sched.StartingTime] = sched.Clone()
}

// PruneSchedules removes schedules that ended at or before now.
func (s *State) PruneSchedules(now int64) int {
	n := 0
	for k, v := range s.Schedules {
		if v.End() <= now {
			delete(s.Schedules, k)
			n++
		}
	}
	return n
}

// CurrentSchedule returns the committed schedule with the latest starting
// time not after now, provided it still covers now.
func (s *State) CurrentSchedule(now int64) (model.Schedule, bool) {
	var best int64
	found := false
	for k := range s.Schedules {
		if k <= now && (!found || k > best) {
			best, found = k, true
		}
	}
	if !found {
		return model.Schedule{}, false
	}
	sched := s.Schedules[best]
	if sched.SlotIndex(now) < 0 {
		return model.Schedule{}, false
	}
	return sched, true
}

// ScheduleStarts returns the committed starting times in order.
func (s *State) ScheduleStarts() []int64 {
	keys := make([]int64, 0, len(s.Schedules))
	for k := range s.Schedules {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Store persists State. Save must be atomic: a crash never leaves a partial
// record behind. Load returns NewState when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

// EncodeState serializes st for storage.
func EncodeState(st State) ([]byte, error) {
	st.Version = StateVersion
	return json.MarshalIndent(st, "", "  ")
}

// DecodeState parses a stored record.
func DecodeState(data []byte) (State, error) {
	st := NewState()
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decode scheduler state: %w", err)
	}
	if st.Version > StateVersion {
		return State{}, fmt.Errorf("scheduler state version %d is newer than supported %d", st.Version, StateVersion)
	}
	if st.Schedules == nil {
		st.Schedules = map[int64]model.Schedule{}
	}
	st.Version = StateVersion
	return st, nil
}

// MemoryStore keeps the encoded state in memory.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	Err   error
}

func (m *MemoryStore) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return NewState(), nil
	}
	return DecodeState(m.data)
}

func (m *MemoryStore) Save(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
