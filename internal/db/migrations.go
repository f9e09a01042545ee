package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS users (
		id          UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name        TEXT NOT NULL,
		phone       TEXT NOT NULL,
		email       TEXT,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS plates (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id         UUID NOT NULL REFERENCES users(id),
		number          TEXT NOT NULL,
		normalized      TEXT NOT NULL,
		vehicle_make    TEXT,
		vehicle_model   TEXT,
		vehicle_color   TEXT,
		is_primary      BOOLEAN NOT NULL DEFAULT TRUE,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_plates_normalized ON plates(normalized);`,
	`CREATE INDEX IF NOT EXISTS idx_plates_user_id ON plates(user_id);`,
	`CREATE TABLE IF NOT EXISTS detections (
		id                  UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		plate_number        TEXT NOT NULL,
		confidence          NUMERIC(5,4),
		camera_id           TEXT NOT NULL,
		location            TEXT,
		image_url           TEXT NOT NULL,
		detected_at         TIMESTAMPTZ NOT NULL,
		matched_user_id     UUID REFERENCES users(id),
		notification_sent   BOOLEAN NOT NULL DEFAULT FALSE,
		raw_response        JSONB,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_plate_number ON detections(plate_number);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id                  UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id             UUID NOT NULL REFERENCES users(id),
		detection_id        UUID NOT NULL,
		phone               TEXT NOT NULL,
		message             TEXT NOT NULL,
		sent_at             TIMESTAMPTZ NOT NULL,
		status              TEXT NOT NULL CHECK (status IN ('sent', 'failed')),
		response            JSONB,
		match_confidence    NUMERIC(5,4),
		exact_match         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_detection_id ON notifications(detection_id);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
