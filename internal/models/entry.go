package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Prediction entries are append-only history rows: one JSON blob of
// {input, output, metadata} per prediction, kept per user and only
// read back for listing and export.

// TOIEntry stores a TESS Objects of Interest prediction.
type TOIEntry struct {
	BaseModel
	UserID uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	Data   json.RawMessage `gorm:"type:jsonb" json:"data"`
}

// KOIEntry stores a Kepler Objects of Interest prediction.
type KOIEntry struct {
	BaseModel
	UserID uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	Data   json.RawMessage `gorm:"type:jsonb" json:"data"`
}

// K2Entry stores a K2 mission prediction.
type K2Entry struct {
	BaseModel
	UserID uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	Data   json.RawMessage `gorm:"type:jsonb" json:"data"`
}

// CustomModel is a user-defined model definition. Training is mocked;
// the record exists so predictions can be grouped under it.
type CustomModel struct {
	BaseModel
	UserID   uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	Name     string          `json:"name"`
	Features json.RawMessage `gorm:"type:jsonb" json:"features"`
	Status   string          `gorm:"default:READY" json:"status"`
}

// CustomModelEntry stores a prediction made with a custom model.
type CustomModelEntry struct {
	BaseModel
	CustomModelID uuid.UUID       `gorm:"type:uuid;index" json:"custom_model_id"`
	Data          json.RawMessage `gorm:"type:jsonb" json:"data"`
}

// Prediction job statuses.
const (
	JobProcessing = "PROCESSING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

// PredictionJob tracks one uploaded-file bulk prediction. The rows are
// classified in the background while clients poll the job by ID.
type PredictionJob struct {
	BaseModel
	UserID        uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	ModelType     string    `json:"model_type"`
	FileName      string    `json:"file_name"`
	Status        string    `gorm:"default:PROCESSING" json:"status"`
	TotalRows     int       `json:"total_rows"`
	ProcessedRows int       `json:"processed_rows"`
	StoredRows    int       `json:"stored_rows"`
	Error         string    `json:"error,omitempty"`
}
