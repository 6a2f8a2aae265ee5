package engine

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions int
	failures    int
	latencySum  float64
	scores      []float64
	batchRows   int
	batchFails  int
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) PredictionFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) PredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, v)
}

func (m *MockMetrics) BatchRowsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchRows++
}

func (m *MockMetrics) BatchFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchFails++
}

func (m *MockMetrics) counts() (predictions, failures, batchRows, batchFails int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions, m.failures, m.batchRows, m.batchFails
}
