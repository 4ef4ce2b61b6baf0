package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/model"
)

// sqliteTime is a fixed-width layout so stored timestamps sort as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id             TEXT PRIMARY KEY,
	business_type  TEXT NOT NULL,
	location       TEXT NOT NULL,
	status         TEXT NOT NULL,
	success        INTEGER NOT NULL DEFAULT 0,
	lead_count     INTEGER NOT NULL DEFAULT 0,
	total_cost_usd REAL NOT NULL DEFAULT 0,
	counts         TEXT NOT NULL,
	request        TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL
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
	owner_qualified INTEGER NOT NULL DEFAULT 0,
	total_cost_usd  REAL NOT NULL DEFAULT 0,
	data            TEXT NOT NULL,
	PRIMARY KEY (campaign_id, position)
);

CREATE TABLE IF NOT EXISTS provider_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_campaigns_started_at ON campaigns(started_at);
CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
CREATE INDEX IF NOT EXISTS idx_provider_cache_expires_at ON provider_cache(expires_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCampaign upserts the campaign header and replaces its leads in one
// transaction.
func (s *SQLiteStore) SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error {
	counts, err := json.Marshal(summary.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}
	request, err := json.Marshal(summary.Request)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal request")
	}
	rows, err := leadRows(summary.ID, leads)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	q, args, err := s.sb.Insert("campaigns").
		Columns(campaignColumns...).
		Values(
			summary.ID, summary.BusinessType, summary.Location, string(summary.Status), summary.Success,
			summary.LeadCount, summary.TotalCostUSD, string(counts), string(request),
			formatSQLiteTime(summary.StartedAt), formatSQLiteTime(summary.FinishedAt),
		).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, success = excluded.success, lead_count = excluded.lead_count,
			total_cost_usd = excluded.total_cost_usd, counts = excluded.counts, finished_at = excluded.finished_at`).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "sqlite: build campaign upsert")
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert campaign %s", summary.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE campaign_id = ?`, summary.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear leads %s", summary.ID)
	}

	if len(rows) > 0 {
		ins := s.sb.Insert("leads").Columns(leadColumns...)
		for _, r := range rows {
			r[len(r)-1] = string(r[len(r)-1].([]byte))
			ins = ins.Values(r...)
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return eris.Wrap(err, "sqlite: build lead insert")
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert leads %s", summary.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit campaign")
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.CampaignSummary, error) {
	q, args, err := s.sb.Select(campaignColumns...).From("campaigns").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get campaign")
	}
	c, err := scanCampaign(s.db.QueryRowContext(ctx, q, args...), newSQLiteTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.CampaignSummary, error) {
	q, args, err := listQuery(s.sb, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list campaigns")
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.CampaignSummary{}
	for rows.Next() {
		c, err := scanCampaign(rows, newSQLiteTime)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, campaignID string) ([]*model.QualifiedLead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM leads WHERE campaign_id = ? ORDER BY position`, campaignID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list leads %s", campaignID)
	}
	defer rows.Close() //nolint:errcheck

	out := []*model.QualifiedLead{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l, err := unmarshalLead(data)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var value []byte
	var exp int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM provider_cache WHERE key = ?`, key,
	).Scan(&value, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, eris.Wrap(err, "sqlite: get cache entry")
	}
	return value, time.UnixMilli(exp), true, nil
}

func (s *SQLiteStore) SetCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt.UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: set cache entry")
}

func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM provider_cache WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: delete expired cache rows")
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

type sqliteTimeColumn struct{ s string }

func newSQLiteTime() timeColumn { return &sqliteTimeColumn{} }

func (c *sqliteTimeColumn) dest() any { return &c.s }

func (c *sqliteTimeColumn) value() (time.Time, error) {
	return time.Parse(sqliteTime, c.s)
}
