package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow hook interfaces used by the
// engine, the model store, the geocoder and the HTTP server.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc() {
	w.m.PredictionsTotal.Inc()
}

func (w *MetricsWrapper) PredictionFailuresInc() {
	w.m.PredictionFailures.Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(v float64) {
	w.m.PredictionLatency.Observe(v)
}

func (w *MetricsWrapper) PredictionScoresObserve(v float64) {
	w.m.PredictionScores.Observe(v)
}

func (w *MetricsWrapper) BatchRowsInc() {
	w.m.BatchRowsTotal.Inc()
}

func (w *MetricsWrapper) BatchFailuresInc() {
	w.m.BatchFailures.Inc()
}

func (w *MetricsWrapper) TrainingRunsInc() {
	w.m.TrainingRuns.Inc()
}

func (w *MetricsWrapper) TrainingDurationObserve(v float64) {
	w.m.TrainingDuration.Observe(v)
}

func (w *MetricsWrapper) ModelMAESet(v float64) {
	w.m.ModelMAE.Set(v)
}

func (w *MetricsWrapper) ModelR2Set(v float64) {
	w.m.ModelR2.Set(v)
}

func (w *MetricsWrapper) GeocodeRequestsInc() {
	w.m.GeocodeRequests.Inc()
}

func (w *MetricsWrapper) GeocodeFallbacksInc() {
	w.m.GeocodeFallbacks.Inc()
}

func (w *MetricsWrapper) HTTPRequestsInc(route, method string, status int) {
	w.m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// ErrorRate reports the share of failed predictions.
func (w *MetricsWrapper) ErrorRate() float64 {
	return w.m.ErrorRate()
}
