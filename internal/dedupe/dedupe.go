// Package dedupe audits a game's turns for repeated submissions of the same
// photo by the same player, and can remove the repeats.
package dedupe

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"sort"

	"twovue/internal/store"

	"github.com/rs/zerolog/log"
)

var metricDuplicatesPurgedTotal = expvar.NewInt("duplicates_purged_total")

type TurnStore interface {
	ListTurns(ctx context.Context, gameID string) ([]store.Turn, error)
	DeleteTurn(ctx context.Context, id string) error
}

// Fingerprint identifies a submission for duplicate detection. The turn id
// and number are deliberately not part of it.
type Fingerprint struct {
	PhotoURL   string
	PlayerName string
}

func FingerprintOf(t store.Turn) Fingerprint {
	return Fingerprint{PhotoURL: t.PhotoURL, PlayerName: t.PlayerName}
}

type Duplicate struct {
	Turn     store.Turn `json:"turn"`
	Original store.Turn `json:"original"`
}

type Report struct {
	GameID     string       `json:"game_id"`
	Originals  []store.Turn `json:"originals"`
	Duplicates []Duplicate  `json:"duplicates"`
}

type Detector struct {
	store TurnStore
}

func New(st TurnStore) *Detector {
	return &Detector{store: st}
}

// Detect classifies the game's turns without modifying them. Turns are
// walked oldest first; the first turn seen per fingerprint is the original.
func (d *Detector) Detect(ctx context.Context, gameID string) (Report, error) {
	turns, err := d.store.ListTurns(ctx, gameID)
	if err != nil {
		return Report{}, fmt.Errorf("list turns: %w", err)
	}
	return Classify(gameID, turns), nil
}

// Classify is Detect over an already loaded turn set.
func Classify(gameID string, turns []store.Turn) Report {
	ordered := append([]store.Turn(nil), turns...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.TurnNumber != b.TurnNumber {
			return a.TurnNumber < b.TurnNumber
		}
		return a.ID < b.ID
	})

	report := Report{GameID: gameID, Originals: []store.Turn{}, Duplicates: []Duplicate{}}
	seen := make(map[Fingerprint]store.Turn, len(ordered))
	for _, t := range ordered {
		fp := FingerprintOf(t)
		if original, ok := seen[fp]; ok {
			report.Duplicates = append(report.Duplicates, Duplicate{Turn: t, Original: original})
			continue
		}
		seen[fp] = t
		report.Originals = append(report.Originals, t)
	}
	return report
}

// Purge deletes every turn Detect reports as a duplicate and returns how many
// were removed. Turns already gone are not counted.
func (d *Detector) Purge(ctx context.Context, gameID string) (int, error) {
	report, err := d.Detect(ctx, gameID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, dup := range report.Duplicates {
		if err := d.store.DeleteTurn(ctx, dup.Turn.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return removed, fmt.Errorf("delete turn %s: %w", dup.Turn.ID, err)
		}
		removed++
		log.Info().
			Str("game_id", gameID).
			Str("turn_id", dup.Turn.ID).
			Int("turn_number", dup.Turn.TurnNumber).
			Str("original_id", dup.Original.ID).
			Msg("duplicate turn purged")
	}
	metricDuplicatesPurgedTotal.Add(int64(removed))
	return removed, nil
}
