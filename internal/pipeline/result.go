package pipeline

import (
	"time"

	"github.com/data-power-io/commerce-export/internal/csvexport"
	"github.com/data-power-io/commerce-export/internal/storage"
)

// ErrorInfo is the serialized form of a failure.
type ErrorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// StorageOutcome is the storage part of a result. A failed write sets
// Stored=false and Error and still carries the compression stats.
type StorageOutcome struct {
	Stored           bool                `json:"stored"`
	FileName         string              `json:"fileName,omitempty"`
	DownloadURL      string              `json:"downloadUrl,omitempty"`
	Properties       *storage.Properties `json:"properties,omitempty"`
	CompressionStats *csvexport.Stats    `json:"compressionStats,omitempty"`
	StorageType      string              `json:"storageType,omitempty"`
	Location         string              `json:"location,omitempty"`
	Error            *ErrorInfo          `json:"error,omitempty"`
}

// Degradation counts lookups that fell back to defaults.
type Degradation struct {
	Categories int `json:"categories"`
	Inventory  int `json:"inventory"`
}

// ExportResult describes a finished run, successful or not.
type ExportResult struct {
	RunID         string          `json:"runId"`
	State         State           `json:"state"`
	FailedIn      State           `json:"failedIn,omitempty"`
	RecordCount   int             `json:"recordCount"`
	CategoryCount int             `json:"categoryCount"`
	ElapsedMs     int64           `json:"elapsedMs"`
	PeakHeapBytes uint64          `json:"peakHeapBytes"`
	StartedAt     time.Time       `json:"startedAt"`
	Storage       *StorageOutcome `json:"storage,omitempty"`
	Degraded      Degradation     `json:"degraded"`
	Error         *ErrorInfo      `json:"error,omitempty"`
	Steps         []Step          `json:"steps"`
}

// Stored reports whether the file reached storage.
func (r *ExportResult) Stored() bool {
	return r.Storage != nil && r.Storage.Stored
}
