package scm

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MockSource is a test double for Source.
// It serves predefined commits per calendar day and counts the calls it receives.
type MockSource struct {
	mu sync.Mutex

	// Days maps "2006-01-02" to the commits of that day.
	Days    map[string][]CommitRecord
	Shelved []CommitRecord

	// DayErrors makes CommitsForDay fail for the given day.
	DayErrors  map[string]error
	ShelvedErr error

	dayCalls     map[string]int
	shelvedCalls int
}

// NewMockSource creates an empty MockSource.
func NewMockSource() *MockSource {
	return &MockSource{
		Days:      make(map[string][]CommitRecord),
		DayErrors: make(map[string]error),
		dayCalls:  make(map[string]int),
	}
}

// AddCommit registers a submitted commit under the day of its When field.
func (m *MockSource) AddCommit(c CommitRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := c.When.Format(time.DateOnly)
	m.Days[key] = append(m.Days[key], c)
}

// CommitsForDay returns the commits registered for day whose author matches identity.
func (m *MockSource) CommitsForDay(_ context.Context, identity string, day time.Time) ([]CommitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := day.Format(time.DateOnly)
	m.dayCalls[key]++
	if err := m.DayErrors[key]; err != nil {
		return nil, err
	}

	want := NormalizeIdentity(identity)
	var out []CommitRecord
	for _, c := range m.Days[key] {
		if want == "" || c.Author == want {
			out = append(out, c)
		}
	}
	return slices.Clone(out), nil
}

// ShelvedCommits returns the registered shelved commits whose author matches identity.
func (m *MockSource) ShelvedCommits(_ context.Context, identity string) ([]CommitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shelvedCalls++
	if m.ShelvedErr != nil {
		return nil, m.ShelvedErr
	}

	want := NormalizeIdentity(identity)
	var out []CommitRecord
	for _, c := range m.Shelved {
		if want == "" || c.Author == want {
			out = append(out, c)
		}
	}
	return out, nil
}

// DayCalls returns how often CommitsForDay was called for day.
func (m *MockSource) DayCalls(day time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dayCalls[day.Format(time.DateOnly)]
}

// TotalDayCalls returns the number of CommitsForDay calls over all days.
func (m *MockSource) TotalDayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.dayCalls {
		total += n
	}
	return total
}

// ShelvedCalls returns how often ShelvedCommits was called.
func (m *MockSource) ShelvedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shelvedCalls
}
