package detection

import (
	"time"

	"github.com/google/uuid"
)

const DefaultCameraID = "default"

// Plate codes stored in place of a plate number when no plate could be produced.
const (
	PlateUnknown         = "UNKNOWN"
	PlateDetectionFailed = "DETECTION_FAILED"
	PlateBatchError      = "BATCH_ERROR"
)

type Request struct {
	ImageURL string `json:"image_url"`
	CameraID string `json:"camera_id,omitempty"`
	Location string `json:"location,omitempty"`
}

// Camera returns the camera identifier, falling back to DefaultCameraID.
func (r Request) Camera() string {
	if r.CameraID == "" {
		return DefaultCameraID
	}
	return r.CameraID
}

type Result struct {
	ID               uuid.UUID              `json:"id"`
	PlateNumber      string                 `json:"plate_number"`
	Confidence       float64                `json:"confidence"`
	CameraID         string                 `json:"camera_id"`
	Location         string                 `json:"location,omitempty"`
	ImageURL         string                 `json:"image_url"`
	DetectedAt       time.Time              `json:"detected_at"`
	MatchedOwnerID   *uuid.UUID             `json:"matched_owner_id,omitempty"`
	NotificationSent bool                   `json:"notification_sent"`
	RawResponse      map[string]interface{} `json:"raw_response,omitempty"`
}

// Failed reports whether the result records a detection that could not be processed.
func (r Result) Failed() bool {
	return IsErrorPlate(r.PlateNumber)
}

func IsErrorPlate(plate string) bool {
	switch plate {
	case PlateUnknown, PlateDetectionFailed, PlateBatchError:
		return true
	}
	return false
}

type PlateMatch struct {
	PlateNumber     string    `json:"plate_number"`
	OwnerID         uuid.UUID `json:"owner_id"`
	OwnerName       string    `json:"owner_name"`
	OwnerPhone      string    `json:"owner_phone"`
	Confidence      float64   `json:"confidence"`
	ExactMatch      bool      `json:"exact_match"`
	SimilarityScore float64   `json:"similarity_score"`
}

// Registration is an active plate joined with its active owner.
type Registration struct {
	PlateID    uuid.UUID
	Plate      string
	OwnerID    uuid.UUID
	OwnerName  string
	OwnerPhone string
}

type NotificationStatus string

const (
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

type NotificationRecord struct {
	ID              uuid.UUID              `json:"id"`
	OwnerID         uuid.UUID              `json:"owner_id"`
	DetectionID     uuid.UUID              `json:"detection_id"`
	Phone           string                 `json:"phone"`
	Message         string                 `json:"message"`
	SentAt          time.Time              `json:"sent_at"`
	Status          NotificationStatus     `json:"status"`
	Response        map[string]interface{} `json:"response,omitempty"`
	MatchConfidence float64                `json:"match_confidence"`
	ExactMatch      bool                   `json:"exact_match"`
}
