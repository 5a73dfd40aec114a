package pgstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/AndrewDonelson/embedcore/internal/store"
	"github.com/AndrewDonelson/embedcore/internal/store/pgstore"
)

const (
	pgImage    = "postgres:16-alpine"
	pgDatabase = "embedcoretest"
	pgUser     = "embedcoreuser"
	pgPassword = "embedcorepass"
)

// setupPG spins up a Postgres container and returns a migrated Store.
// skips the test if Docker is not available.
func setupPG(t *testing.T) *pgstore.Store {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	pgc, err := tcpg.Run(ctx, pgImage,
		tcpg.WithDatabase(pgDatabase),
		tcpg.WithUsername(pgUser),
		tcpg.WithPassword(pgPassword),
		tcpg.BasicWaitStrategies(),
	)
	require.NoError(t, err, "start postgres container")

	connStr, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	s := pgstore.New(pool)
	require.NoError(t, s.Migrate(ctx))

	t.Cleanup(func() {
		pool.Close()
		if err := pgc.Terminate(ctx); err != nil {
			t.Logf("cleanup: terminate container: %v", err)
		}
	})

	return s
}

func TestPG_Ping(t *testing.T) {
	s := setupPG(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestPG_KeyLifecycle(t *testing.T) {
	s := setupPG(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Microsecond)

	rec := store.KeyRecord{UserID: "u1", Ciphertext: []byte{1, 2, 3}, CreatedAt: created}
	require.NoError(t, s.InsertKey(ctx, rec))
	assert.ErrorIs(t, s.InsertKey(ctx, rec), store.ErrDuplicate)

	got, err := s.GetKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.Ciphertext)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.RotatedAt.IsZero())

	rotated := created.Add(time.Hour)
	require.NoError(t, s.ReplaceKey(ctx, store.KeyRecord{
		UserID: "u1", Ciphertext: []byte{9}, CreatedAt: created, RotatedAt: rotated,
	}))
	got, err = s.GetKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got.Ciphertext)
	assert.True(t, got.RotatedAt.Equal(rotated))

	_, err = s.GetKey(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNoRows)
}

func TestPG_VectorLifecycle(t *testing.T) {
	s := setupPG(t)
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Microsecond)

	id1, err := s.InsertVector(ctx, store.VectorRecord{
		UserID: "u1", SessionID: "s1", Platform: "web", Timestamp: ts, Payload: []byte("v1"),
	})
	require.NoError(t, err)
	id2, err := s.InsertVector(ctx, store.VectorRecord{
		UserID: "u1", SessionID: "s1", Platform: "web", Timestamp: ts.Add(time.Minute), Payload: []byte("v2"),
	})
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	got, err := s.LatestVector(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, id2, got.ID)
	assert.Equal(t, []byte("v2"), got.Payload)

	_, err = s.LatestVector(ctx, "u1", "other")
	assert.ErrorIs(t, err, store.ErrNoRows)
}
