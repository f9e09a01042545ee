package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"plate-alert-service/internal/domain/detection"
	"plate-alert-service/internal/utils"
)

type RegistryStore interface {
	ListActiveRegistrations(ctx context.Context) ([]detection.Registration, error)
}

// Matcher ranks registered plates against a detected plate.
type Matcher struct {
	store     RegistryStore
	threshold float64
	log       zerolog.Logger
}

func NewMatcher(store RegistryStore, threshold float64, log zerolog.Logger) *Matcher {
	return &Matcher{
		store:     store,
		threshold: threshold,
		log:       log.With().Str("component", "matcher").Logger(),
	}
}

// FindMatches returns at most one match per owner, exact matches first and then by
// descending confidence. An empty result means no owner was identified.
func (m *Matcher) FindMatches(ctx context.Context, plate string) ([]detection.PlateMatch, error) {
	registrations, err := m.store.ListActiveRegistrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list active plates: %w", detection.ErrMatchingFailure, err)
	}

	m.log.Debug().Str("plate", plate).Int("candidates", len(registrations)).Msg("searching registry")

	best := make(map[string]detection.PlateMatch)
	for _, reg := range registrations {
		match, ok := m.score(plate, reg)
		if !ok {
			continue
		}
		key := reg.OwnerID.String()
		if current, exists := best[key]; !exists || better(match, current) {
			best[key] = match
		}
	}

	matches := make([]detection.PlateMatch, 0, len(best))
	for _, match := range best {
		matches = append(matches, match)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return better(matches[i], matches[j])
	})

	m.log.Info().Str("plate", plate).Int("matches", len(matches)).Msg("registry search finished")
	return matches, nil
}

func (m *Matcher) score(plate string, reg detection.Registration) (detection.PlateMatch, bool) {
	stored := reg.Plate
	if normalized, ok := utils.NormalizePlate(stored); ok {
		stored = normalized
	} else {
		return detection.PlateMatch{}, false
	}

	match := detection.PlateMatch{
		PlateNumber: reg.Plate,
		OwnerID:     reg.OwnerID,
		OwnerName:   reg.OwnerName,
		OwnerPhone:  reg.OwnerPhone,
	}

	if ExactMatch(plate, stored) {
		match.Confidence = 1
		match.SimilarityScore = 1
		match.ExactMatch = true
		return match, true
	}

	lexical := LexicalSimilarity(plate, stored)
	pattern := PatternSimilarity(plate, stored)
	score := lexical
	if pattern > score {
		score = pattern
	}
	if score < m.threshold {
		return detection.PlateMatch{}, false
	}

	m.log.Debug().
		Str("plate", plate).
		Str("candidate", reg.Plate).
		Float64("lexical", lexical).
		Float64("pattern", pattern).
		Msg("fuzzy match")

	match.Confidence = score
	match.SimilarityScore = score
	return match, true
}

func better(a, b detection.PlateMatch) bool {
	if a.ExactMatch != b.ExactMatch {
		return a.ExactMatch
	}
	return a.Confidence > b.Confidence
}
