// Package storage persists prediction history: single predictions with their
// price projections, and batch jobs. Two backends are provided, an embedded
// BoltDB file and PostgreSQL.
package storage

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scoutout/internal/property"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Batch job states.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// History is the prediction history store.
type History interface {
	CreatePrediction(ctx context.Context, p *PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (*PredictionRecord, error)
	ListPredictions(ctx context.Context, limit int) ([]PredictionRecord, error)
	SaveProjections(ctx context.Context, predictionID string, points []property.ProjectionPoint) error
	GetProjections(ctx context.Context, predictionID string) ([]property.ProjectionPoint, error)

	CreateBatchJob(ctx context.Context, job *BatchJob) error
	GetBatchJob(ctx context.Context, id string) (*BatchJob, error)
	UpdateBatchJob(ctx context.Context, job *BatchJob) error
	ListBatchJobs(ctx context.Context, limit int) ([]BatchJob, error)

	Close() error
}

// PredictionRecord is a stored prediction with its inputs.
type PredictionRecord struct {
	ID                    string    `json:"id" db:"id"`
	Income                float64   `json:"avgAreaIncome" db:"avg_area_income"`
	HouseAge              float64   `json:"avgAreaHouseAge" db:"avg_area_house_age"`
	Rooms                 float64   `json:"avgAreaNumberOfRooms" db:"avg_area_number_of_rooms"`
	Bedrooms              float64   `json:"avgAreaNumberOfBedrooms" db:"avg_area_number_of_bedrooms"`
	Population            float64   `json:"areaPopulation" db:"area_population"`
	PredictedPrice        float64   `json:"predictedPrice" db:"predicted_price"`
	Confidence            float64   `json:"confidence" db:"confidence"`
	InvestmentScore       float64   `json:"investmentScore" db:"investment_score"`
	AppreciationPotential float64   `json:"appreciationPotential" db:"appreciation_potential"`
	RiskScore             float64   `json:"riskScore" db:"risk_score"`
	Address               string    `json:"address,omitempty" db:"address"`
	BatchJobID            string    `json:"batchJobId,omitempty" db:"batch_job_id"`
	CreatedAt             time.Time `json:"createdAt" db:"created_at"`
}

// NewPredictionRecord builds a record from the inputs and the engine result.
func NewPredictionRecord(f property.FeatureVector, r *property.PredictionResult, address string) *PredictionRecord {
	return &PredictionRecord{
		Income:                f.Income,
		HouseAge:              f.HouseAge,
		Rooms:                 f.Rooms,
		Bedrooms:              f.Bedrooms,
		Population:            f.Population,
		PredictedPrice:        r.PredictedPrice,
		Confidence:            r.Confidence,
		InvestmentScore:       r.InvestmentScore,
		AppreciationPotential: r.AppreciationPotential,
		RiskScore:             r.RiskScore,
		Address:               address,
	}
}

// BatchJob tracks a batch prediction upload.
type BatchJob struct {
	ID               string     `json:"id" db:"id"`
	FileName         string     `json:"fileName" db:"file_name"`
	Status           string     `json:"status" db:"status"`
	TotalRecords     int        `json:"totalRecords" db:"total_records"`
	ProcessedRecords int        `json:"processedRecords" db:"processed_records"`
	Error            string     `json:"error,omitempty" db:"error"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt      *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// Finish marks the job completed, or failed when err is non-nil.
func (j *BatchJob) Finish(err error, now time.Time) {
	j.Status = JobCompleted
	if err != nil {
		j.Status = JobFailed
		j.Error = err.Error()
	}
	j.CompletedAt = &now
}

// MarketFactors is a JSON column holding projection factor percentages.
type MarketFactors map[string]float64

// Value implements driver.Valuer interface
func (m MarketFactors) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface
func (m *MarketFactors) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*m = MarketFactors{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("market factors: unsupported type %T", value)
	}

	result := MarketFactors{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return err
		}
	}
	*m = result
	return nil
}

func assignID(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}
