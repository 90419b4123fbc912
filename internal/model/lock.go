package model

import "time"

// Lock represents the in-memory lease over a single reportId. FencingValue
// is the queue message id of the delivery currently holding the lease — the
// token every extend/release call must present to prove it is still the
// rightful holder.
type Lock struct {
	ReportID     string
	FencingValue string
	TTL          time.Duration
}

// MetadataStatus is the lifecycle status of a ReportMetadata record.
type MetadataStatus string

const (
	MetadataProcessing MetadataStatus = "processing"
	MetadataCompleted  MetadataStatus = "completed"
	MetadataFailed     MetadataStatus = "failed"
)

// ReportMetadata is the authoritative, document-store-resident record of a
// report's lifecycle. Only the job handler transitions Status to completed
// or failed.
type ReportMetadata struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	ReportDataURI    string         `json:"reportDataUri,omitempty"`
	Status           MetadataStatus `json:"status"`
	NumTopics        int            `json:"numTopics,omitempty"`
	NumSubtopics     int            `json:"numSubtopics,omitempty"`
	NumClaims        int            `json:"numClaims,omitempty"`
	NumPeople        int            `json:"numPeople,omitempty"`
	CreatedDate      *time.Time     `json:"createdDate,omitempty"`
	LastStatusUpdate time.Time      `json:"lastStatusUpdate"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
}
