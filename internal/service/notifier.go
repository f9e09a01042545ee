package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"plate-alert-service/internal/domain/detection"
)

const alertTimeLayout = "03:04 PM on January 02, 2006"

var errSMSNotConfigured = errors.New("sms gateway not configured")

type SMSSender interface {
	Send(ctx context.Context, to, message string) (map[string]interface{}, error)
}

type NotificationStore interface {
	SaveNotification(ctx context.Context, record *detection.NotificationRecord) error
}

type NotifierOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	Signature  string
}

// Notifier sends owner alerts and records every attempt, delivered or not.
type Notifier struct {
	sender SMSSender
	store  NotificationStore
	opts   NotifierOptions
	log    zerolog.Logger
	now    func() time.Time
}

func NewNotifier(sender SMSSender, store NotificationStore, opts NotifierOptions, log zerolog.Logger) *Notifier {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Millisecond
	}
	return &Notifier{
		sender: sender,
		store:  store,
		opts:   opts,
		log:    log.With().Str("component", "notifier").Logger(),
		now:    time.Now,
	}
}

func (n *Notifier) Configured() bool { return n.sender != nil }

// Notify alerts the matched owner about result. A false return means the message
// was not delivered; the outcome is persisted either way.
func (n *Notifier) Notify(ctx context.Context, match detection.PlateMatch, result detection.Result) bool {
	message := n.composeMessage(match, result)

	response, attempts, err := n.dispatch(ctx, match.OwnerPhone, message)

	record := &detection.NotificationRecord{
		ID:              uuid.New(),
		OwnerID:         match.OwnerID,
		DetectionID:     result.ID,
		Phone:           match.OwnerPhone,
		Message:         message,
		SentAt:          n.now().UTC(),
		Status:          detection.NotificationSent,
		MatchConfidence: match.Confidence,
		ExactMatch:      match.ExactMatch,
		Response: map[string]interface{}{
			"success":  err == nil,
			"attempts": attempts,
			"response": response,
		},
	}
	if err != nil {
		record.Status = detection.NotificationFailed
		record.Response["error"] = fmt.Sprintf("sms failed after %d attempts: %v", attempts, err)
	}

	if saveErr := n.store.SaveNotification(context.WithoutCancel(ctx), record); saveErr != nil {
		n.log.Error().
			Err(saveErr).
			Str("notification_id", record.ID.String()).
			Str("detection_id", result.ID.String()).
			Msg("failed to store notification record")
	}

	if err != nil {
		n.log.Error().
			Err(fmt.Errorf("%w: %w", detection.ErrNotificationFailure, err)).
			Str("owner_id", match.OwnerID.String()).
			Str("detection_id", result.ID.String()).
			Int("attempts", attempts).
			Msg("sms notification failed")
		return false
	}

	n.log.Info().
		Str("owner_id", match.OwnerID.String()).
		Str("detection_id", result.ID.String()).
		Int("attempts", attempts).
		Msg("sms notification sent")
	return true
}

func (n *Notifier) dispatch(ctx context.Context, phone, message string) (map[string]interface{}, int, error) {
	if n.sender == nil {
		return nil, 0, errSMSNotConfigured
	}

	var (
		response map[string]interface{}
		attempts int
	)
	backoff := retry.WithMaxRetries(uint64(n.opts.MaxRetries), linearBackoff(n.opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		resp, err := n.sender.Send(ctx, phone, message)
		response = resp
		if err != nil {
			n.log.Warn().Err(err).Int("attempt", attempts).Msg("sms attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	return response, attempts, err
}

// linearBackoff waits step, 2*step, 3*step, ...
func linearBackoff(step time.Duration) retry.Backoff {
	var attempt int64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * step, false
	})
}

func (n *Notifier) composeMessage(match detection.PlateMatch, result detection.Result) string {
	when := "recently"
	if !result.DetectedAt.IsZero() {
		when = result.DetectedAt.Format(alertTimeLayout)
	}

	where := ""
	if result.Location != "" {
		where = " at " + result.Location
	}

	if match.ExactMatch {
		return fmt.Sprintf(
			"VEHICLE ALERT for %s: Your vehicle with plate %s was detected%s at %s. "+
				"If this wasn't you, please contact us immediately. - %s",
			match.OwnerName, match.PlateNumber, where, when, n.opts.Signature,
		)
	}
	return fmt.Sprintf(
		"POSSIBLE MATCH for %s: A vehicle with plate similar to %s (read as %s) was detected%s at %s "+
			"(approximate match, confidence: %.0f%%). Please verify if this was your vehicle. - %s",
		match.OwnerName, match.PlateNumber, result.PlateNumber, where, when, match.Confidence*100, n.opts.Signature,
	)
}
