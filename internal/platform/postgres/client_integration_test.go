//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfrid/internal/platform/config"
	"mfrid/pkg/platform/sentinel"
	"mfrid/pkg/testutil/containers"
)

func TestOpenAgainstRealServer(t *testing.T) {
	srv := containers.StartPostgres(t)
	ctx := context.Background()

	db, err := Open(ctx, config.Postgres{
		URL:            srv.URL,
		MaxOpenConns:   2,
		MaxIdleConns:   1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.NoError(t, db.Health(ctx))
	assert.Equal(t, 2, db.Stats().MaxOpenConnections)

	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Health(ctx), sentinel.ErrUnavailable)
}
