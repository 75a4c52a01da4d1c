// File: internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL mocks.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func sampleSnapshot() *schemas.ApplicationStateSnapshot {
	return &schemas.ApplicationStateSnapshot{
		ApplicationID: "app-123",
		OverallStatus: "InProgress",
		CurrentURL:    "https://jobs.example.com/apply/step-2",
		PageCount:     2,
		AccumulatedFormData: map[string]string{
			"user.personal_info.first_name": "Ada",
		},
		UpdatedAt: 1700000000,
	}
}

func TestNewPostgresStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgresStore(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject nil pool", func(t *testing.T) {
		_, err := NewPostgresStore(context.Background(), nil, zap.NewNop())
		require.Error(t, err)
	})
}

func TestPostgresSaveLoad(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		mockPool.ExpectPing()
		st, err := NewPostgresStore(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)
		return st, mockPool
	}

	t.Run("save upserts one row", func(t *testing.T) {
		st, mockPool := newStore(t)
		defer mockPool.Close()

		snap := sampleSnapshot()
		mockPool.ExpectExec(flexibleSQLMatcher(upsertSQL)).
			WithArgs(snap.ApplicationID, snap.OverallStatus, snap.CurrentURL, snap.UpdatedAt, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, st.Save(ctx, snap))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("save rejects snapshot without id", func(t *testing.T) {
		st, mockPool := newStore(t)
		defer mockPool.Close()

		err := st.Save(ctx, &schemas.ApplicationStateSnapshot{})
		require.Error(t, err)
	})

	t.Run("load round-trips the document", func(t *testing.T) {
		st, mockPool := newStore(t)
		defer mockPool.Close()

		snap := sampleSnapshot()
		doc, err := jsonAPI.Marshal(snap)
		require.NoError(t, err)

		mockPool.ExpectQuery(flexibleSQLMatcher(selectSQL)).
			WithArgs(snap.ApplicationID).
			WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(doc))

		loaded, err := st.Load(ctx, snap.ApplicationID)
		require.NoError(t, err)
		assert.Equal(t, snap.OverallStatus, loaded.OverallStatus)
		assert.Equal(t, snap.AccumulatedFormData, loaded.AccumulatedFormData)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("load maps missing rows to ErrNotFound", func(t *testing.T) {
		st, mockPool := newStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(flexibleSQLMatcher(selectSQL)).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"snapshot"}))

		_, err := st.Load(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("save then load returns an independent copy", func(t *testing.T) {
		st := NewMemoryStore()
		snap := sampleSnapshot()
		require.NoError(t, st.Save(ctx, snap))

		loaded, err := st.Load(ctx, snap.ApplicationID)
		require.NoError(t, err)
		assert.Equal(t, snap.OverallStatus, loaded.OverallStatus)

		loaded.OverallStatus = "mutated"
		again, err := st.Load(ctx, snap.ApplicationID)
		require.NoError(t, err)
		assert.Equal(t, "InProgress", again.OverallStatus)
	})

	t.Run("load of unknown id is ErrNotFound", func(t *testing.T) {
		st := NewMemoryStore()
		_, err := st.Load(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
