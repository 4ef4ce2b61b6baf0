package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresStore(mock), mock
}

func TestPostgres_ImplementsStore(t *testing.T) {
	var _ Store = (*PostgresStore)(nil)
}

func TestPostgres_SaveCampaign(t *testing.T) {
	s, mock := newMockPostgres(t)
	sum := testSummary("cmp-1", model.StatusTargetMet, testStart)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "campaigns"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM leads WHERE campaign_id = \$1`).
		WithArgs("cmp-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, leadColumns).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.SaveCampaign(context.Background(), sum, testLeads()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveCampaign_NoLeadsSkipsCopy(t *testing.T) {
	s, mock := newMockPostgres(t)
	sum := testSummary("cmp-2", model.StatusBudgetExhausted, testStart)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "campaigns"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM leads`).
		WithArgs("cmp-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	require.NoError(t, s.SaveCampaign(context.Background(), sum, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveCampaign_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "campaigns"`).WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	err := s.SaveCampaign(context.Background(), testSummary("cmp-1", model.StatusTargetMet, testStart), testLeads())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save campaign cmp-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveCampaign_BeginError(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	err := s.SaveCampaign(context.Background(), testSummary("cmp-1", model.StatusTargetMet, testStart), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func campaignRow(t *testing.T, sum model.CampaignSummary) []any {
	t.Helper()
	counts, err := json.Marshal(sum.Counts)
	require.NoError(t, err)
	request, err := json.Marshal(sum.Request)
	require.NoError(t, err)
	return []any{
		sum.ID, sum.BusinessType, sum.Location, string(sum.Status), sum.Success, sum.LeadCount,
		sum.TotalCostUSD, counts, request, sum.StartedAt, sum.FinishedAt,
	}
}

func TestPostgres_GetCampaign(t *testing.T) {
	s, mock := newMockPostgres(t)
	sum := testSummary("cmp-1", model.StatusTargetMet, testStart)

	mock.ExpectQuery(`SELECT .+ FROM campaigns WHERE id = \$1`).
		WithArgs("cmp-1").
		WillReturnRows(pgxmock.NewRows(campaignColumns).AddRow(campaignRow(t, sum)...))

	got, err := s.GetCampaign(context.Background(), "cmp-1")
	require.NoError(t, err)
	assert.Equal(t, sum, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCampaign_NotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .+ FROM campaigns WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(campaignColumns))

	_, err := s.GetCampaign(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgres_ListCampaigns(t *testing.T) {
	s, mock := newMockPostgres(t)
	newer := testSummary("new", model.StatusTargetMet, testStart.Add(time.Hour))
	older := testSummary("old", model.StatusTargetMet, testStart)

	mock.ExpectQuery(`SELECT .+ FROM campaigns WHERE status = \$1 ORDER BY started_at DESC LIMIT 10`).
		WithArgs("target_met").
		WillReturnRows(pgxmock.NewRows(campaignColumns).
			AddRow(campaignRow(t, newer)...).
			AddRow(campaignRow(t, older)...))

	got, err := s.ListCampaigns(context.Background(), CampaignFilter{Status: model.StatusTargetMet, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListLeads(t *testing.T) {
	s, mock := newMockPostgres(t)
	leads := testLeads()
	a, err := json.Marshal(leads[0])
	require.NoError(t, err)
	b, err := json.Marshal(leads[1])
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM leads WHERE campaign_id = \$1 ORDER BY position`).
		WithArgs("cmp-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(a).AddRow(b))

	got, err := s.ListLeads(context.Background(), "cmp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Lakeline Family Dental", got[0].Name)
	assert.Equal(t, 80, got[0].FinalConfidenceScore)
	assert.Equal(t, "Barton Creek Smiles", got[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CacheEntries(t *testing.T) {
	s, mock := newMockPostgres(t)
	ctx := context.Background()
	exp := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO "provider_cache" \("key", "value", "expires_at"\)`).
		WithArgs("hunter:abc", []byte("v"), exp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SetCacheEntry(ctx, "hunter:abc", []byte("v"), exp))

	mock.ExpectQuery(`SELECT value, expires_at FROM provider_cache WHERE key = \$1`).
		WithArgs("hunter:abc").
		WillReturnRows(pgxmock.NewRows([]string{"value", "expires_at"}).AddRow([]byte("v"), exp))
	val, gotExp, found, err := s.GetCacheEntry(ctx, "hunter:abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), val)
	assert.Equal(t, exp, gotExp)

	mock.ExpectQuery(`SELECT value, expires_at FROM provider_cache`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"value", "expires_at"}))
	_, _, found, err = s.GetCacheEntry(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectExec(`DELETE FROM provider_cache WHERE expires_at <= \$1`).
		WithArgs(exp).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	n, err := s.DeleteExpiredCache(ctx, exp)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS campaigns`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
