package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	sb   sq.StatementBuilderType
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	campaignUpsert = db.UpsertConfig{
		Table:        "campaigns",
		Columns:      campaignColumns,
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"status", "success", "lead_count", "total_cost_usd", "counts", "finished_at"},
	}
	cacheUpsert = db.UpsertConfig{
		Table:        "provider_cache",
		Columns:      []string{"key", "value", "expires_at"},
		ConflictKeys: []string{"key"},
	}
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id             TEXT PRIMARY KEY,
	business_type  TEXT NOT NULL,
	location       TEXT NOT NULL,
	status         TEXT NOT NULL,
	success        BOOLEAN NOT NULL DEFAULT false,
	lead_count     INTEGER NOT NULL DEFAULT 0,
	total_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	counts         JSONB NOT NULL,
	request        JSONB NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	campaign_id     TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	external_id     TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL,
	phone           TEXT NOT NULL DEFAULT '',
	website         TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	final_score     INTEGER NOT NULL,
	owner_qualified BOOLEAN NOT NULL DEFAULT false,
	total_cost_usd  DOUBLE PRECISION NOT NULL DEFAULT 0,
	data            JSONB NOT NULL,
	PRIMARY KEY (campaign_id, position)
);

CREATE TABLE IF NOT EXISTS provider_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_campaigns_started_at ON campaigns(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
CREATE INDEX IF NOT EXISTS idx_provider_cache_expires_at ON provider_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveCampaign upserts the campaign header, then replaces its leads through
// COPY, all in one transaction.
func (s *PostgresStore) SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error {
	counts, err := json.Marshal(summary.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}
	request, err := json.Marshal(summary.Request)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal request")
	}
	rows, err := leadRows(summary.ID, leads)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := db.Upsert(ctx, tx, campaignUpsert,
		summary.ID, summary.BusinessType, summary.Location, string(summary.Status), summary.Success,
		summary.LeadCount, summary.TotalCostUSD, counts, request, summary.StartedAt, summary.FinishedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: save campaign %s", summary.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM leads WHERE campaign_id = $1`, summary.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear leads %s", summary.ID)
	}
	if _, err := db.CopyFrom(ctx, tx, "leads", leadColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy leads %s", summary.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit campaign")
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.CampaignSummary, error) {
	q, args, err := s.sb.Select(campaignColumns...).From("campaigns").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get campaign")
	}
	c, err := scanCampaign(s.pool.QueryRow(ctx, q, args...), newPgTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.CampaignSummary, error) {
	q, args, err := listQuery(s.sb, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list campaigns")
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	out := []model.CampaignSummary{}
	for rows.Next() {
		c, err := scanCampaign(rows, newPgTime)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) ListLeads(ctx context.Context, campaignID string) ([]*model.QualifiedLead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM leads WHERE campaign_id = $1 ORDER BY position`, campaignID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list leads %s", campaignID)
	}
	defer rows.Close()

	out := []*model.QualifiedLead{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l, err := unmarshalLead(data)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) GetCacheEntry(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var value []byte
	var exp time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM provider_cache WHERE key = $1`, key,
	).Scan(&value, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, eris.Wrap(err, "postgres: get cache entry")
	}
	return value, exp, true, nil
}

func (s *PostgresStore) SetCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	_, err := db.Upsert(ctx, s.pool, cacheUpsert, key, value, expiresAt)
	return eris.Wrap(err, "postgres: set cache entry")
}

func (s *PostgresStore) DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM provider_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache")
	}
	return tag.RowsAffected(), nil
}

type pgTimeColumn struct{ t time.Time }

func newPgTime() timeColumn { return &pgTimeColumn{} }

func (c *pgTimeColumn) dest() any { return &c.t }

func (c *pgTimeColumn) value() (time.Time, error) { return c.t, nil }
