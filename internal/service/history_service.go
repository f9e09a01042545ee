package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"plate-alert-service/internal/domain/detection"
	"plate-alert-service/internal/utils"
)

type HistoryStore interface {
	FindDetections(ctx context.Context, plate *string, from, to *time.Time, limit, offset int) ([]detection.Result, error)
	DeleteOldDetections(ctx context.Context, days int) (int64, error)
}

// HistoryService reads back stored detections.
type HistoryService struct {
	repo HistoryStore
	log  zerolog.Logger
}

func NewHistoryService(repo HistoryStore, log zerolog.Logger) *HistoryService {
	return &HistoryService{
		repo: repo,
		log:  log,
	}
}

func (s *HistoryService) FindDetections(ctx context.Context, plateQuery *string, from, to *string, limit, offset int) ([]detection.Result, error) {
	var normalizedPlate *string
	if plateQuery != nil {
		if normalized, ok := utils.NormalizePlate(*plateQuery); ok {
			normalizedPlate = &normalized
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", detection.ErrValidation)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", detection.ErrValidation)
		}
		toTime = &t
	}
	if fromTime != nil && toTime != nil && toTime.Before(*fromTime) {
		return nil, fmt.Errorf("%w: to is before from", detection.ErrValidation)
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	results, err := s.repo.FindDetections(ctx, normalizedPlate, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find detections: %w", err)
	}
	return results, nil
}

// CleanupOldDetections удаляет распознавания старше указанного количества дней
func (s *HistoryService) CleanupOldDetections(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, fmt.Errorf("%w: days must be at least 1", detection.ErrValidation)
	}
	deleted, err := s.repo.DeleteOldDetections(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old detections")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old detections")
	}
	return deleted, nil
}
