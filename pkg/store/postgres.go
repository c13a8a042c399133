// Package store persists picks, passes and prediction history in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/phenomenon0/capper-engine/pkg/decision"
	"github.com/phenomenon0/capper-engine/pkg/sports"
)

const schema = `
CREATE TABLE IF NOT EXISTS picks (
	id             TEXT PRIMARY KEY,
	game_id        TEXT NOT NULL,
	capper         TEXT NOT NULL,
	pick_type      TEXT NOT NULL,
	side           TEXT NOT NULL DEFAULT '',
	selection      TEXT NOT NULL,
	odds           INT NOT NULL,
	line           DOUBLE PRECISION,
	units          INT NOT NULL,
	to_win         NUMERIC(12,4) NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	factors        JSONB,
	reasoning      TEXT[],
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS picks_capper_game ON picks (capper, game_id);

CREATE TABLE IF NOT EXISTS passes (
	id         BIGSERIAL PRIMARY KEY,
	game_id    TEXT NOT NULL,
	capper     TEXT NOT NULL,
	stage      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	reason     TEXT NOT NULL,
	details    TEXT[],
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS predictions (
	game_id         TEXT PRIMARY KEY,
	baseline_margin DOUBLE PRECISION NOT NULL,
	implied_margin  DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cappers (
	name    TEXT PRIMARY KEY,
	config  JSONB NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT true
);
`

// Connect opens and pings a Postgres connection.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Postgres is the engine's persistence layer.
type Postgres struct{ db *sql.DB }

// NewPostgres wraps an open connection.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveBatch writes every pick and pass of one batch in a transaction.
func (p *Postgres) SaveBatch(ctx context.Context, picks []sports.Pick, passes []sports.PassRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := range picks {
		if err := insertPick(ctx, tx, &picks[i]); err != nil {
			return err
		}
	}
	for i := range passes {
		if err := insertPass(ctx, tx, &passes[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertPick(ctx context.Context, db execer, pick *sports.Pick) error {
	factors, err := json.Marshal(pick.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO picks (id,game_id,capper,pick_type,side,selection,odds,line,units,to_win,confidence,factors,reasoning,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING`,
		pick.ID, pick.GameID, pick.Capper, string(pick.BetType), string(pick.Side), pick.Selection, pick.Odds, pick.Line,
		pick.Units, pick.ToWin, pick.Confidence, factors, pq.Array(pick.Reasoning), pick.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pick %s: %w", pick.ID, err)
	}
	return nil
}

func insertPass(ctx context.Context, db execer, pass *sports.PassRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO passes (game_id,capper,stage,kind,reason,details)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		pass.GameID, pass.Capper, string(pass.Stage), string(pass.Kind), pass.Reason, pq.Array(pass.Details),
	)
	if err != nil {
		return fmt.Errorf("insert pass %s: %w", pass.GameID, err)
	}
	return nil
}

// Claimed returns the bet types a capper has already picked for each game.
func (p *Postgres) Claimed(ctx context.Context, capper string, gameIDs []string) (map[string][]sports.BetType, error) {
	if len(gameIDs) == 0 {
		return map[string][]sports.BetType{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT game_id, pick_type FROM picks
		WHERE capper = $1 AND game_id = ANY($2::text[])
		ORDER BY game_id, pick_type`,
		capper, pq.Array(gameIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("query claimed: %w", err)
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var gameID, betType string
		if err := rows.Scan(&gameID, &betType); err != nil {
			return nil, fmt.Errorf("scan claimed: %w", err)
		}
		pairs = append(pairs, [2]string{gameID, betType})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupClaims(pairs), nil
}

func groupClaims(pairs [][2]string) map[string][]sports.BetType {
	out := make(map[string][]sports.BetType)
	for _, p := range pairs {
		out[p[0]] = append(out[p[0]], sports.BetType(p[1]))
	}
	return out
}

// RecentPicks returns the newest picks first.
func (p *Postgres) RecentPicks(ctx context.Context, limit int) ([]sports.Pick, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id,game_id,capper,pick_type,side,selection,odds,COALESCE(line,0),units,to_win,confidence,factors,reasoning,created_at
		FROM picks ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query picks: %w", err)
	}
	defer rows.Close()

	var out []sports.Pick
	for rows.Next() {
		var pk sports.Pick
		var betType, side string
		var factors []byte
		if err := rows.Scan(&pk.ID, &pk.GameID, &pk.Capper, &betType, &side, &pk.Selection, &pk.Odds, &pk.Line,
			&pk.Units, &pk.ToWin, &pk.Confidence, &factors, pq.Array(&pk.Reasoning), &pk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pick: %w", err)
		}
		pk.BetType = sports.BetType(betType)
		pk.Side = sports.Side(side)
		pk.ConfidencePct = decision.ConfidenceToPercent(pk.Confidence)
		if len(factors) > 0 {
			if err := json.Unmarshal(factors, &pk.Factors); err != nil {
				return nil, fmt.Errorf("decode factors for %s: %w", pk.ID, err)
			}
		}
		out = append(out, pk)
	}
	return out, rows.Err()
}

// RecentPasses returns the newest passes first.
func (p *Postgres) RecentPasses(ctx context.Context, limit int) ([]sports.PassRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT game_id,capper,stage,kind,reason,details
		FROM passes ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var out []sports.PassRecord
	for rows.Next() {
		var pr sports.PassRecord
		var stage, kind string
		if err := rows.Scan(&pr.GameID, &pr.Capper, &stage, &kind, &pr.Reason, pq.Array(&pr.Details)); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		pr.Stage, pr.Kind = sports.Stage(stage), sports.PassKind(kind)
		out = append(out, pr)
	}
	return out, rows.Err()
}

// SavePrediction records a game's baseline margin next to the margin the
// spread implied, for fitting the residualizer later.
func (p *Postgres) SavePrediction(ctx context.Context, gameID string, baselineMargin, impliedMargin float64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO predictions (game_id,baseline_margin,implied_margin) VALUES ($1,$2,$3)
		ON CONFLICT (game_id) DO UPDATE SET baseline_margin = EXCLUDED.baseline_margin,
			implied_margin = EXCLUDED.implied_margin, created_at = now()`,
		gameID, baselineMargin, impliedMargin,
	)
	if err != nil {
		return fmt.Errorf("save prediction %s: %w", gameID, err)
	}
	return nil
}

// PredictionHistory returns baseline margins and implied margins from the
// last window.
func (p *Postgres) PredictionHistory(ctx context.Context, window time.Duration) (baseline, implied []float64, err error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT baseline_margin, implied_margin FROM predictions
		WHERE created_at > $1 ORDER BY created_at`, time.Now().Add(-window))
	if err != nil {
		return nil, nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b, i float64
		if err := rows.Scan(&b, &i); err != nil {
			return nil, nil, fmt.Errorf("scan prediction: %w", err)
		}
		baseline = append(baseline, b)
		implied = append(implied, i)
	}
	return baseline, implied, rows.Err()
}

// LoadCappers implements registry.Loader over the cappers table.
func (p *Postgres) LoadCappers(ctx context.Context) ([]decision.Config, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, config FROM cappers WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query cappers: %w", err)
	}
	defer rows.Close()

	var out []decision.Config
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan capper: %w", err)
		}
		c, err := decodeCapper(name, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// decodeCapper overlays the stored JSON on the baseline preset so rows only
// need the fields that differ.
func decodeCapper(name string, raw []byte) (decision.Config, error) {
	c := decision.Baseline()
	if err := json.Unmarshal(raw, &c); err != nil {
		return decision.Config{}, fmt.Errorf("decode capper %s: %w", name, err)
	}
	c.Name = name
	return c, nil
}
