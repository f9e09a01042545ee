package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"plate-alert-service/internal/domain/detection"
	"plate-alert-service/internal/utils"
)

var (
	ErrInvalidPlate    = errors.New("invalid plate number")
	ErrPlateRegistered = errors.New("plate already registered to another owner")
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	Phone     string    `gorm:"not null"`
	Email     *string
	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Plate struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;not null"`
	Number       string    `gorm:"not null"`
	Normalized   string    `gorm:"not null;uniqueIndex"`
	VehicleMake  *string
	VehicleModel *string
	VehicleColor *string
	IsPrimary    bool `gorm:"not null;default:true"`
	IsActive     bool `gorm:"not null;default:true"`
	CreatedAt    time.Time
}

type Detection struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlateNumber      string    `gorm:"not null"`
	Confidence       float64
	CameraID         string `gorm:"not null"`
	Location         *string
	ImageURL         string     `gorm:"not null"`
	DetectedAt       time.Time  `gorm:"not null"`
	MatchedUserID    *uuid.UUID `gorm:"type:uuid"`
	NotificationSent bool
	RawResponse      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt        time.Time
}

type Notification struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"type:uuid;not null"`
	DetectionID     uuid.UUID         `gorm:"type:uuid;not null"`
	Phone           string            `gorm:"not null"`
	Message         string            `gorm:"not null"`
	SentAt          time.Time         `gorm:"not null"`
	Status          string            `gorm:"not null"`
	Response        datatypes.JSONMap `gorm:"type:jsonb"`
	MatchConfidence float64
	ExactMatch      bool
	CreatedAt       time.Time
}

type VehicleInfo struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Color string `json:"color,omitempty"`
}

// ListActiveRegistrations returns active plates whose owners are active too.
func (r *DetectionRepository) ListActiveRegistrations(ctx context.Context) ([]detection.Registration, error) {
	var regs []detection.Registration

	err := r.db.WithContext(ctx).
		Table("plates").
		Select("plates.id as plate_id, plates.number as plate, users.id as owner_id, users.name as owner_name, users.phone as owner_phone").
		Joins("JOIN users ON plates.user_id = users.id").
		Where("plates.is_active = ? AND users.is_active = ?", true, true).
		Scan(&regs).Error

	if err != nil {
		return nil, err
	}

	return regs, nil
}

func (r *DetectionRepository) SaveDetection(ctx context.Context, result *detection.Result) error {
	row := detectionFromResult(result)
	row.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *DetectionRepository) SaveNotification(ctx context.Context, record *detection.NotificationRecord) error {
	row := Notification{
		ID:              record.ID,
		UserID:          record.OwnerID,
		DetectionID:     record.DetectionID,
		Phone:           record.Phone,
		Message:         record.Message,
		SentAt:          record.SentAt,
		Status:          string(record.Status),
		MatchConfidence: record.MatchConfidence,
		ExactMatch:      record.ExactMatch,
		CreatedAt:       time.Now(),
	}
	if len(record.Response) > 0 {
		row.Response = datatypes.JSONMap(record.Response)
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *DetectionRepository) CreateUser(ctx context.Context, name, phone string, email *string) (uuid.UUID, error) {
	user := User{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Phone:     strings.TrimSpace(phone),
		Email:     email,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

// GetOrCreatePlate registers number for userID, returning the existing plate id when
// the normalized number is already registered to the same owner.
func (r *DetectionRepository) GetOrCreatePlate(ctx context.Context, userID uuid.UUID, number string, vehicle VehicleInfo) (uuid.UUID, error) {
	normalized, ok := utils.NormalizePlate(number)
	if !ok || !utils.ValidPlateLength(normalized) {
		return uuid.Nil, ErrInvalidPlate
	}

	var plate Plate
	err := r.db.WithContext(ctx).Where("normalized = ?", normalized).First(&plate).Error
	if err == nil {
		return existingPlateID(plate, userID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, err
	}

	plate = Plate{
		ID:           uuid.New(),
		UserID:       userID,
		Number:       normalized,
		Normalized:   normalized,
		VehicleMake:  optional(vehicle.Make),
		VehicleModel: optional(vehicle.Model),
		VehicleColor: optional(vehicle.Color),
		IsPrimary:    true,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&plate).Error; err != nil {
		return uuid.Nil, err
	}
	return plate.ID, nil
}

func existingPlateID(plate Plate, userID uuid.UUID) (uuid.UUID, error) {
	if plate.UserID != userID {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrPlateRegistered, plate.Normalized)
	}
	return plate.ID, nil
}

func (r *DetectionRepository) FindDetections(ctx context.Context, plate *string, from, to *time.Time, limit, offset int) ([]detection.Result, error) {
	query := r.db.WithContext(ctx).Model(&Detection{})

	if plate != nil {
		query = query.Where("plate_number = ?", *plate)
	}
	if from != nil {
		query = query.Where("detected_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("detected_at <= ?", *to)
	}

	query = query.Order("detected_at DESC")

	if limit > 0 {
		if limit > 100 {
			limit = 100
		}
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []Detection
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]detection.Result, 0, len(rows))
	for i := range rows {
		results = append(results, rows[i].toResult())
	}
	return results, nil
}

// DeleteOldDetections удаляет распознавания старше указанного количества дней
func (r *DetectionRepository) DeleteOldDetections(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).Where("detected_at < ?", cutoff).Delete(&Detection{})
	return res.RowsAffected, res.Error
}

func detectionFromResult(result *detection.Result) Detection {
	row := Detection{
		ID:               result.ID,
		PlateNumber:      result.PlateNumber,
		Confidence:       result.Confidence,
		CameraID:         result.CameraID,
		ImageURL:         result.ImageURL,
		DetectedAt:       result.DetectedAt,
		MatchedUserID:    result.MatchedOwnerID,
		NotificationSent: result.NotificationSent,
		Location:         optional(result.Location),
	}
	if len(result.RawResponse) > 0 {
		row.RawResponse = datatypes.JSONMap(result.RawResponse)
	}
	return row
}

func (d Detection) toResult() detection.Result {
	result := detection.Result{
		ID:               d.ID,
		PlateNumber:      d.PlateNumber,
		Confidence:       d.Confidence,
		CameraID:         d.CameraID,
		ImageURL:         d.ImageURL,
		DetectedAt:       d.DetectedAt,
		MatchedOwnerID:   d.MatchedUserID,
		NotificationSent: d.NotificationSent,
		RawResponse:      map[string]interface{}(d.RawResponse),
	}
	if d.Location != nil {
		result.Location = *d.Location
	}
	return result
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
