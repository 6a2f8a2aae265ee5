package server

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"scoutout/internal/common"
	"scoutout/internal/dataset"
	"scoutout/internal/property"
	"scoutout/internal/storage"
)

const addressColumn = "Address"

// processBatch scores an uploaded table, stores every row as a prediction
// linked to job and records the final job state.
func (s *Server) processBatch(job *storage.BatchJob, table *dataset.Table) {
	ctx := s.ctx
	start := time.Now()

	err := s.runBatch(ctx, job, table)

	// the final update must land even when the server is shutting down
	job.Finish(err, s.now().UTC())
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if uerr := s.opts.History.UpdateBatchJob(updateCtx, job); uerr != nil {
		log.Error().Err(uerr).Str("job_id", job.ID).Msg("Failed to update batch job")
	}

	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Str("file", job.FileName).Msg("Batch processing error")
		return
	}
	log.Info().
		Str("job_id", job.ID).
		Int("records", job.ProcessedRecords).
		Dur("duration", time.Since(start)).
		Msg("Batch job completed")
}

func (s *Server) runBatch(ctx context.Context, job *storage.BatchJob, table *dataset.Table) error {
	progress := func(done, total int) {
		if done%common.BatchProgressInterval != 0 {
			return
		}
		job.ProcessedRecords = done
		if err := s.opts.History.UpdateBatchJob(ctx, job); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to update batch progress")
		}
	}

	result, err := s.opts.Engine.BatchPredict(ctx, table, progress)
	if err != nil {
		return err
	}

	stored := 0
	for i, row := range result.Rows {
		if err := ctx.Err(); err != nil {
			job.ProcessedRecords = stored
			return err
		}

		values, err := table.Float64s(i, property.FeatureColumns)
		if err != nil {
			return err
		}
		features, err := property.FromSlice(values)
		if err != nil {
			return err
		}
		address, _ := table.Cell(i, addressColumn)

		record := storage.NewPredictionRecord(features, &property.PredictionResult{
			PredictedPrice:        row.PredictedPrice,
			Confidence:            row.Confidence,
			InvestmentScore:       row.InvestmentScore,
			AppreciationPotential: row.AppreciationPotential,
			RiskScore:             row.RiskScore,
		}, address)
		record.BatchJobID = job.ID

		if err := s.opts.History.CreatePrediction(ctx, record); err != nil {
			job.ProcessedRecords = stored
			return fmt.Errorf("store row %d: %w", i+1, err)
		}
		stored++
	}

	job.ProcessedRecords = stored
	return nil
}
