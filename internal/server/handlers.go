package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"scoutout/internal/common"
	"scoutout/internal/dataset"
	"scoutout/internal/geo"
	"scoutout/internal/property"
	"scoutout/internal/storage"
)

const msgHistoryDisabled = "Prediction history is disabled"

// PredictRequest is the body of POST /api/predict.
type PredictRequest struct {
	AvgAreaIncome           *float64 `json:"avgAreaIncome"`
	AvgAreaHouseAge         *float64 `json:"avgAreaHouseAge"`
	AvgAreaNumberOfRooms    *float64 `json:"avgAreaNumberOfRooms"`
	AvgAreaNumberOfBedrooms *float64 `json:"avgAreaNumberOfBedrooms"`
	AreaPopulation          *float64 `json:"areaPopulation"`
	Address                 string   `json:"address,omitempty"`
	TimelineYears           int      `json:"timelineYears,omitempty"`
}

type fieldRange struct {
	name     string
	value    *float64
	min, max float64
}

// Validate checks presence and form ranges and returns the features.
func (req PredictRequest) Validate() (property.FeatureVector, error) {
	fields := []fieldRange{
		{"avgAreaIncome", req.AvgAreaIncome, common.MinAreaIncome, common.MaxAreaIncome},
		{"avgAreaHouseAge", req.AvgAreaHouseAge, common.MinHouseAge, common.MaxHouseAge},
		{"avgAreaNumberOfRooms", req.AvgAreaNumberOfRooms, common.MinRooms, common.MaxRooms},
		{"avgAreaNumberOfBedrooms", req.AvgAreaNumberOfBedrooms, common.MinBedrooms, common.MaxBedrooms},
		{"areaPopulation", req.AreaPopulation, common.MinAreaPopulation, common.MaxAreaPopulation},
	}

	var problems []string
	for _, f := range fields {
		switch {
		case f.value == nil:
			problems = append(problems, f.name+" is required")
		case *f.value < f.min || *f.value > f.max:
			problems = append(problems, fmt.Sprintf("%s must be between %s and %s", f.name, formatNumber(f.min), formatNumber(f.max)))
		}
	}
	if req.TimelineYears != 0 && (req.TimelineYears < common.MinTimelineYears || req.TimelineYears > common.MaxTimelineYears) {
		problems = append(problems, fmt.Sprintf("timelineYears must be between %d and %d", common.MinTimelineYears, common.MaxTimelineYears))
	}
	if len(problems) > 0 {
		return property.FeatureVector{}, errors.New(strings.Join(problems, "; "))
	}

	return property.FeatureVector{
		Income:     *req.AvgAreaIncome,
		HouseAge:   *req.AvgAreaHouseAge,
		Rooms:      *req.AvgAreaNumberOfRooms,
		Bedrooms:   *req.AvgAreaNumberOfBedrooms,
		Population: *req.AreaPopulation,
	}, nil
}

// PredictionResponse is a stored prediction with its timeline.
type PredictionResponse struct {
	*storage.PredictionRecord
	PriceProjections []property.ProjectionPoint `json:"priceProjections"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	features, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	years := req.TimelineYears
	if years == 0 {
		years = s.opts.DefaultYears
	}

	result, err := s.opts.Engine.Predict(r.Context(), features, years)
	if err != nil {
		log.Error().Err(err).Interface("features", features).Msg("Prediction error")
		writeError(w, http.StatusInternalServerError, common.ErrMsgPredictionFailed)
		return
	}

	record := storage.NewPredictionRecord(features, result, req.Address)
	if s.opts.History == nil {
		record.CreatedAt = s.now().UTC()
		writeJSON(w, http.StatusOK, PredictionResponse{PredictionRecord: record, PriceProjections: result.PriceProjections})
		return
	}

	if err := s.opts.History.CreatePrediction(r.Context(), record); err != nil {
		log.Error().Err(err).Msg("Failed to store prediction")
		writeError(w, http.StatusInternalServerError, "Failed to store prediction")
		return
	}
	if err := s.opts.History.SaveProjections(r.Context(), record.ID, result.PriceProjections); err != nil {
		log.Error().Err(err).Str("prediction_id", record.ID).Msg("Failed to store price projections")
		writeError(w, http.StatusInternalServerError, "Failed to store prediction")
		return
	}
	projections, err := s.opts.History.GetProjections(r.Context(), record.ID)
	if err != nil {
		log.Error().Err(err).Str("prediction_id", record.ID).Msg("Failed to read price projections")
		projections = result.PriceProjections
	}

	writeJSON(w, http.StatusOK, PredictionResponse{PredictionRecord: record, PriceProjections: projections})
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotImplemented, msgHistoryDisabled)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	predictions, err := s.opts.History.ListPredictions(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching predictions")
		writeError(w, http.StatusInternalServerError, "Failed to fetch predictions")
		return
	}
	if predictions == nil {
		predictions = []storage.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, predictions)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotImplemented, msgHistoryDisabled)
		return
	}
	id := chi.URLParam(r, "id")

	record, err := s.opts.History.GetPrediction(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("prediction_id", id).Msg("Error fetching prediction")
		writeError(w, http.StatusInternalServerError, "Failed to fetch prediction")
		return
	}

	projections, err := s.opts.History.GetProjections(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("prediction_id", id).Msg("Error fetching price projections")
		writeError(w, http.StatusInternalServerError, "Failed to fetch prediction")
		return
	}
	writeJSON(w, http.StatusOK, PredictionResponse{PredictionRecord: record, PriceProjections: projections})
}

func (s *Server) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotImplemented, msgHistoryDisabled)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, common.MaxUploadBytes)
	file, header, err := r.FormFile("csvFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No CSV file uploaded")
		return
	}
	defer file.Close()

	table, err := dataset.Read(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &storage.BatchJob{
		FileName:     header.Filename,
		Status:       storage.JobProcessing,
		TotalRecords: table.Len(),
	}
	if err := s.opts.History.CreateBatchJob(r.Context(), job); err != nil {
		log.Error().Err(err).Msg("Failed to create batch job")
		writeError(w, http.StatusInternalServerError, "Batch upload failed")
		return
	}

	jobID := job.ID
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.processBatch(job, table)
	}()

	writeJSON(w, http.StatusOK, map[string]string{
		"jobId":   jobID,
		"message": "Batch processing started",
	})
}

func (s *Server) handleListBatchJobs(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotImplemented, msgHistoryDisabled)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := s.opts.History.ListBatchJobs(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching batch jobs")
		writeError(w, http.StatusInternalServerError, "Failed to fetch batch jobs")
		return
	}
	if jobs == nil {
		jobs = []storage.BatchJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetBatchJob(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotImplemented, msgHistoryDisabled)
		return
	}
	id := chi.URLParam(r, "id")

	job, err := s.opts.History.GetBatchJob(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Batch job not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", id).Msg("Error fetching batch job")
		writeError(w, http.StatusInternalServerError, "Failed to fetch batch job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "Address is required")
		return
	}

	var coords geo.Coordinates
	if s.opts.Geocoder != nil {
		coords = s.opts.Geocoder.Geocode(r.Context(), address)
	} else {
		coords = geo.FallbackGeocode(address)
	}
	writeJSON(w, http.StatusOK, coords)
}

// NearbyResponse is the body of GET /api/nearby-cities.
type NearbyResponse struct {
	TargetLocation struct {
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		Address string  `json:"address,omitempty"`
	} `json:"targetLocation"`
	NearbyCities []geo.City `json:"nearbyCities"`
}

func (s *Server) handleNearbyCities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		writeError(w, http.StatusBadRequest, "Latitude and longitude are required")
		return
	}
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "Latitude and longitude must be numbers")
		return
	}

	var resp NearbyResponse
	resp.TargetLocation.Lat = lat
	resp.TargetLocation.Lon = lon
	resp.TargetLocation.Address = q.Get("address")
	resp.NearbyCities = geo.Nearby(lat, lon, s.opts.Cities)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	var meta any
	if s.opts.Models != nil {
		if m := s.opts.Models.Metadata(); m != nil {
			meta = m
		}
	}
	if meta == nil {
		writeError(w, http.StatusServiceUnavailable, "Model not loaded")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	modelLoaded := s.opts.Models != nil && s.opts.Models.Metadata() != nil
	body := map[string]any{
		"status":          "ok",
		"model_loaded":    modelLoaded,
		"history_enabled": s.opts.History != nil,
		"timestamp":       s.now().UTC(),
	}
	if s.opts.Metrics != nil {
		body["prediction_error_rate"] = s.opts.Metrics.ErrorRate()
	}
	writeJSON(w, http.StatusOK, body)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return common.DefaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
