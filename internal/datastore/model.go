// model.go defines the persisted records
package datastore

import (
	"time"

	"github.com/tphakala/seisnet-go/internal/subspace"
)

// BasisRecord is a persisted detector: a cluster basis or a singleton
// template, keyed by its source id.
type BasisRecord struct {
	ID             uint        `gorm:"primaryKey"`
	SourceID       string      `gorm:"uniqueIndex;size:191;not null"` // cluster id or template id
	Station        string      `gorm:"index;size:64;not null"`
	Kind           string      `gorm:"size:16;not null"` // subspace or singleton
	Members        []string    `gorm:"serializer:json"`
	Excluded       []string    `gorm:"serializer:json"`
	Vectors        [][]float64 `gorm:"serializer:json"` // one vector for singletons
	SingularValues []float64   `gorm:"serializer:json"`
	Rank           int
	SampleRate     float64
	Normalized     bool
	ReferencePeak  float64
	PickOffset     time.Duration
	Threshold      float64
	Calibration    subspace.Calibration `gorm:"serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RunRecord describes one detection run.
type RunRecord struct {
	ID            uint      `gorm:"primaryKey"`
	RunID         string    `gorm:"uniqueIndex;size:36;not null"`
	Start         time.Time // scanned span
	End           time.Time
	Triggers      int
	Groups        int
	Discarded     int
	FalsePositive int
	Verified      int
	Detections    int
	Exclusions    int
	CreatedAt     time.Time `gorm:"index"`
}

// DetectionRecord is one associated detection of a run.
type DetectionRecord struct {
	ID           uint      `gorm:"primaryKey"`
	RunID        string    `gorm:"uniqueIndex:idx_run_detection;size:36;not null"`
	DetectionID  string    `gorm:"uniqueIndex:idx_run_detection;size:36;not null"`
	Time         time.Time `gorm:"index"`
	Stations     []string  `gorm:"serializer:json"`
	StationCount int       `gorm:"index"`
	Confidence   float64
	Verified     bool
	Magnitude    *float64
	Triggers     []TriggerRecord `gorm:"foreignKey:DetectionRecordID;constraint:OnDelete:CASCADE"`
}

// TriggerRecord is a member trigger of a detection.
type TriggerRecord struct {
	ID                uint   `gorm:"primaryKey"`
	DetectionRecordID uint   `gorm:"index;not null"`
	Station           string `gorm:"size:64"`
	SourceID          string `gorm:"size:191"`
	Kind              string `gorm:"size:16"`
	Time              time.Time
	Statistic         float64
	Magnitude         *float64
}
