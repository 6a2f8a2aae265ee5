package ml

import "sync"

// MockMetrics implements TrainingMetrics for testing
type MockMetrics struct {
	mu           sync.Mutex
	trainingRuns int
	durationSum  float64
	mae          float64
	r2           float64
}

func (m *MockMetrics) TrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingRuns++
}

func (m *MockMetrics) TrainingDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durationSum += v
}

func (m *MockMetrics) ModelMAESet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mae = v
}

func (m *MockMetrics) ModelR2Set(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.r2 = v
}

func (m *MockMetrics) TrainingRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainingRuns
}
