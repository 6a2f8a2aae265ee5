package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"scoutout/internal/property"
)

const (
	predictionsBucket = "predictions" // id -> PredictionRecord
	predictionsByTime = "predictions_by_time"
	projectionsBucket = "projections" // predictionID_year -> ProjectionPoint
	batchJobsBucket   = "batch_jobs"  // id -> BatchJob
	batchJobsByTime   = "batch_jobs_by_time"
)

// BoltStore keeps prediction history in a single BoltDB file.
// Records are JSON values; the *_by_time buckets index ids by creation time
// so listings can walk the cursor backwards for newest-first order.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) scoutout.db under dataPath.
func NewBoltStore(dataPath string) (*BoltStore, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataPath, "scoutout.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{predictionsBucket, predictionsByTime, projectionsBucket, batchJobsBucket, batchJobsByTime} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BoltStore) CreatePrediction(_ context.Context, p *PredictionRecord) error {
	assignID(&p.ID, &p.CreatedAt)
	return s.put(predictionsBucket, predictionsByTime, p.ID, p.CreatedAt, p)
}

func (s *BoltStore) GetPrediction(_ context.Context, id string) (*PredictionRecord, error) {
	var p PredictionRecord
	if err := s.get(predictionsBucket, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListPredictions(_ context.Context, limit int) ([]PredictionRecord, error) {
	var out []PredictionRecord
	err := s.listNewest(predictionsBucket, predictionsByTime, limit, func(data []byte) error {
		var p PredictionRecord
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// SaveProjections stores the timeline of a prediction, replacing any
// earlier points for the same years.
func (s *BoltStore) SaveProjections(_ context.Context, predictionID string, points []property.ProjectionPoint) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(predictionsBucket)).Get([]byte(predictionID)) == nil {
			return fmt.Errorf("prediction %s: %w", predictionID, ErrNotFound)
		}

		b := tx.Bucket([]byte(projectionsBucket))
		for _, p := range points {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal projection: %w", err)
			}
			if err := b.Put(projectionKey(predictionID, p.Year), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProjections returns the stored timeline ordered by year.
func (s *BoltStore) GetProjections(_ context.Context, predictionID string) ([]property.ProjectionPoint, error) {
	points := []property.ProjectionPoint{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(projectionsBucket)).Cursor()
		prefix := []byte(predictionID + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p property.ProjectionPoint
			if err := json.Unmarshal(v, &p); err != nil {
				continue // Skip malformed records
			}
			points = append(points, p)
		}
		return nil
	})

	return points, err
}

func (s *BoltStore) CreateBatchJob(_ context.Context, job *BatchJob) error {
	assignID(&job.ID, &job.CreatedAt)
	if job.Status == "" {
		job.Status = JobProcessing
	}
	return s.put(batchJobsBucket, batchJobsByTime, job.ID, job.CreatedAt, job)
}

func (s *BoltStore) GetBatchJob(_ context.Context, id string) (*BatchJob, error) {
	var job BatchJob
	if err := s.get(batchJobsBucket, id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) UpdateBatchJob(_ context.Context, job *BatchJob) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(batchJobsBucket))
		if b.Get([]byte(job.ID)) == nil {
			return fmt.Errorf("batch job %s: %w", job.ID, ErrNotFound)
		}

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal batch job: %w", err)
		}
		return b.Put([]byte(job.ID), data)
	})
}

func (s *BoltStore) ListBatchJobs(_ context.Context, limit int) ([]BatchJob, error) {
	var out []BatchJob
	err := s.listNewest(batchJobsBucket, batchJobsByTime, limit, func(data []byte) error {
		var job BatchJob
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		out = append(out, job)
		return nil
	})
	return out, err
}

func (s *BoltStore) put(bucket, index, id string, createdAt time.Time, v any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", bucket, err)
		}
		if err := tx.Bucket([]byte(bucket)).Put([]byte(id), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(index)).Put(timeKey(createdAt, id), []byte(id))
	})
}

func (s *BoltStore) get(bucket, id string, v any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, id, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

// listNewest walks index from the newest key backwards and decodes up to
// limit records; limit <= 0 means all.
func (s *BoltStore) listNewest(bucket, index string, limit int, decode func([]byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(bucket))
		c := tx.Bucket([]byte(index)).Cursor()

		n := 0
		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			if limit > 0 && n >= limit {
				break
			}
			data := records.Get(id)
			if data == nil {
				continue
			}
			if err := decode(data); err != nil {
				return fmt.Errorf("decode %s record: %w", bucket, err)
			}
			n++
		}
		return nil
	})
}

func timeKey(t time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", t.UnixNano(), id))
}

func projectionKey(predictionID string, year int) []byte {
	return []byte(fmt.Sprintf("%s_%06d", predictionID, year))
}
