package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"inapp-message-engine/internal/config"
	"inapp-message-engine/internal/engine"
)

// PgStore backs the message cache and display ledger with Postgres for
// server-hosted deployments, where the engine runs behind an HTTP facade
// and state must outlive any single instance. It exposes the same
// degrade-to-miss surface as the file stores.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(ctx context.Context, cfg config.Config) (*PgStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	s := &PgStore{pool: pool}
	s.pruneLedger(ctx, cfg.LedgerRetention())
	return s, nil
}

func (s *PgStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Save replaces the singleton cache row wholesale.
func (s *PgStore) Save(msgs []engine.MessageDefinition) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msgs)
	if err != nil {
		log.Warn().Err(err).Msg("marshal message definitions")
		return
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO inapp_cache (id, definitions, fetched_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET definitions = $1, fetched_at = now()
	`, data)
	if err != nil {
		log.Warn().Err(err).Msg("message cache save failed")
	}
}

func (s *PgStore) Load() []engine.MessageDefinition {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT definitions FROM inapp_cache WHERE id = 1`).Scan(&data)
	if err != nil {
		return nil
	}
	var msgs []engine.MessageDefinition
	if err := json.Unmarshal(data, &msgs); err != nil {
		log.Warn().Err(err).Msg("message cache row corrupt, treating as empty")
		return nil
	}
	return msgs
}

func (s *PgStore) FetchTimestamp() time.Time {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var t time.Time
	if err := s.pool.QueryRow(ctx, `SELECT fetched_at FROM inapp_cache WHERE id = 1`).Scan(&t); err != nil {
		return time.Time{}
	}
	return t
}

func (s *PgStore) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `DELETE FROM inapp_cache WHERE id = 1`); err != nil {
		log.Warn().Err(err).Msg("message cache clear failed")
	}
}

func (s *PgStore) Status(id string) engine.DisplayStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var st engine.DisplayStatus
	err := s.pool.QueryRow(ctx, `
		SELECT displayed_at, interacted_at FROM inapp_display_status WHERE message_id = $1
	`, id).Scan(&st.DisplayedAt, &st.InteractedAt)
	if err != nil {
		return engine.DisplayStatus{}
	}
	return st
}

func (s *PgStore) RecordDisplay(id string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inapp_display_status (message_id, displayed_at)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO UPDATE SET displayed_at = $2
	`, id, at)
	if err != nil {
		log.Warn().Err(err).Str("message_id", id).Msg("record display failed")
	}
}

func (s *PgStore) RecordInteraction(id string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inapp_display_status (message_id, interacted_at)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO UPDATE SET interacted_at = $2
	`, id, at)
	if err != nil {
		log.Warn().Err(err).Str("message_id", id).Msg("record interaction failed")
	}
}

func (s *PgStore) ClearStatuses() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `DELETE FROM inapp_display_status`); err != nil {
		log.Warn().Err(err).Msg("ledger clear failed")
	}
}

// pruneLedger mirrors the file ledger's construction-time eviction.
func (s *PgStore) pruneLedger(ctx context.Context, retention time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cutoff := time.Now().Add(-retention)
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM inapp_display_status
		WHERE COALESCE(displayed_at, 'epoch'::timestamptz) < $1
		  AND COALESCE(interacted_at, 'epoch'::timestamptz) < $1
	`, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("ledger prune failed")
		return
	}
	if tag.RowsAffected() > 0 {
		log.Debug().Int64("dropped", tag.RowsAffected()).Msg("pruned stale ledger rows")
	}
}

// Messages and Statuses expose the two store roles separately so their
// Clear semantics stay distinct at the orchestrator boundary.
func (s *PgStore) Messages() PgMessages { return PgMessages{s} }
func (s *PgStore) Statuses() PgStatuses { return PgStatuses{s} }

type PgMessages struct{ s *PgStore }

func (m PgMessages) Save(msgs []engine.MessageDefinition) { m.s.Save(msgs) }
func (m PgMessages) Load() []engine.MessageDefinition     { return m.s.Load() }
func (m PgMessages) FetchTimestamp() time.Time            { return m.s.FetchTimestamp() }
func (m PgMessages) Clear()                               { m.s.Clear() }

type PgStatuses struct{ s *PgStore }

func (t PgStatuses) Status(id string) engine.DisplayStatus     { return t.s.Status(id) }
func (t PgStatuses) RecordDisplay(id string, at time.Time)     { t.s.RecordDisplay(id, at) }
func (t PgStatuses) RecordInteraction(id string, at time.Time) { t.s.RecordInteraction(id, at) }
func (t PgStatuses) Clear()                                    { t.s.ClearStatuses() }

func (s *PgStore) ListenChannel() string {
	return "inapp_messages_change"
}

func (s *PgStore) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}
