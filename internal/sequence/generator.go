// Package sequence issues human-readable identifiers from per-category counters.
//
// The read-increment-write of a counter runs under a row lock inside a
// transaction. When the caller's context already carries a transaction the
// increment joins it, so a failed booking rolls its number back with it.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
	"github.com/hackgods/hospital-appointment-engine/internal/metrics"
)

// Store is satisfied by *db.TxManager.
type Store interface {
	db.Transactor
	Conn(ctx context.Context) db.Querier
}

type Generator struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewGenerator(store Store, m *metrics.Metrics) *Generator {
	return &Generator{store: store, metrics: m, now: time.Now}
}

// WithClock overrides the time source used to pick the reset epoch.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	if now != nil {
		g.now = now
	}
	return g
}

const (
	seedSequenceSQL = `
		INSERT INTO id_sequences (sequence_type, prefix, padding, reset_policy, epoch_key, current_value, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, now())
		ON CONFLICT (sequence_type) DO NOTHING
	`
	lockSequenceSQL = `
		SELECT prefix, padding, reset_policy, epoch_key, current_value
		FROM id_sequences
		WHERE sequence_type = $1
		FOR UPDATE
	`
	advanceSequenceSQL = `
		UPDATE id_sequences
		SET current_value = $2,
		    epoch_key = $3,
		    updated_at = now()
		WHERE sequence_type = $1
	`
)

// Next increments the counter for t and returns the formatted identifier.
func (g *Generator) Next(ctx context.Context, t Type) (string, error) {
	seed, err := Lookup(t)
	if err != nil {
		return "", err
	}

	var id string
	err = g.store.WithinTx(ctx, func(ctx context.Context) error {
		q := g.store.Conn(ctx)
		now := g.now()

		seedEpoch, err := seed.Reset.EpochKey(now)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, seedSequenceSQL, string(t), seed.Prefix, seed.Padding, string(seed.Reset), seedEpoch); err != nil {
			return fmt.Errorf("seed sequence %s: %w", t, err)
		}

		var (
			def       Definition
			reset     string
			storedKey string
			current   int64
		)
		err = q.QueryRow(ctx, lockSequenceSQL, string(t)).Scan(&def.Prefix, &def.Padding, &reset, &storedKey, &current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.Configuration("sequence %q has no counter row", string(t))
			}
			return fmt.Errorf("lock sequence %s: %w", t, err)
		}
		def.Reset = ResetPolicy(reset)

		epoch, err := def.Reset.EpochKey(now)
		if err != nil {
			return err
		}
		if storedKey != epoch {
			current = 0
		}
		next := current + 1

		if _, err := q.Exec(ctx, advanceSequenceSQL, string(t), next, epoch); err != nil {
			return fmt.Errorf("advance sequence %s: %w", t, err)
		}

		id = Format(def, epoch, next)
		return nil
	})
	if err != nil {
		return "", err
	}

	g.metrics.ObserveSequenceIssued(string(t))
	return id, nil
}
