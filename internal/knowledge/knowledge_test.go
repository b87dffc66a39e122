package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/config"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, schemas.DiscoveryRecord{
		Target: "10.10.10.5", Category: "port", Key: "22/tcp", Value: "open",
	}))
	require.NoError(t, s.Record(ctx, schemas.DiscoveryRecord{
		Target: "10.10.10.5", Category: "service", Key: "22", Value: "ssh OpenSSH 8.9",
	}))

	out, err := s.RetrieveRelevant(ctx, "10.10.10.5")
	require.NoError(t, err)
	assert.Contains(t, out, "[port] 22/tcp: open")
	assert.Contains(t, out, "[service] 22: ssh OpenSSH 8.9")

	empty, err := s.RetrieveRelevant(ctx, "10.10.10.99")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreOverwritesDuplicateKey(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	rec := schemas.DiscoveryRecord{Target: "t", Category: "port", Key: "80/tcp", Value: "open"}
	require.NoError(t, s.Record(ctx, rec))
	rec.Value = "open http"
	require.NoError(t, s.Record(ctx, rec))

	out, err := s.RetrieveRelevant(ctx, "t")
	require.NoError(t, err)
	assert.Contains(t, out, "open http")
	assert.Equal(t, 1, len(s.entries["t"]))
}

func TestMemoryStoreRequiresTarget(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	assert.Error(t, s.Record(context.Background(), schemas.DiscoveryRecord{Category: "port"}))
}

func TestNewFromConfigDefaultsToMemory(t *testing.T) {
	s, err := NewFromConfig(context.Background(), config.KnowledgeConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}

func TestNewFromConfigUnknownType(t *testing.T) {
	_, err := NewFromConfig(context.Background(), config.KnowledgeConfig{Type: "redis"}, zap.NewNop())
	assert.Error(t, err)
}

func newMockedStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS discoveries").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	s, err := NewPostgresStoreWithPool(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func TestPostgresStoreRecord(t *testing.T) {
	s, mock := newMockedStore(t)
	defer mock.Close()

	ts := time.Now()
	mock.ExpectExec("INSERT INTO discoveries").
		WithArgs("10.10.10.5", "flag", "flag{x}", "flag{x}", ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Record(context.Background(), schemas.DiscoveryRecord{
		Target: "10.10.10.5", Category: "flag", Key: "flag{x}", Value: "flag{x}", Timestamp: ts,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRetrieveRelevant(t *testing.T) {
	s, mock := newMockedStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"category", "key", "value"}).
		AddRow("port", "22/tcp", "open").
		AddRow("service", "22", "ssh")
	mock.ExpectQuery("SELECT category, key, value FROM discoveries").
		WithArgs("10.10.10.5", retrieveCap).
		WillReturnRows(rows)

	out, err := s.RetrieveRelevant(context.Background(), "10.10.10.5")
	require.NoError(t, err)
	assert.Contains(t, out, "[port] 22/tcp: open")
	assert.Contains(t, out, "[service] 22: ssh")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorePingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing().WillReturnError(assert.AnError)
	_, err = NewPostgresStoreWithPool(context.Background(), mock, zap.NewNop())
	assert.Error(t, err)
}
