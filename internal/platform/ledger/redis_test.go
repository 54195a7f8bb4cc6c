package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTryMark(t *testing.T) {
	client, mock := redismock.NewClientMock()
	guard := NewRedis(client)
	ctx := context.Background()
	day := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	key := "shiftwatch:dispatch:7:2025-03-03"

	mock.ExpectSetNX(key, "1", markerTTL).SetVal(true)
	ok, err := guard.TryMark(ctx, 7, day)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSetNX(key, "1", markerTTL).SetVal(false)
	ok, err = guard.TryMark(ctx, 7, day)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSetNX(key, "1", markerTTL).SetErr(assert.AnError)
	ok, err = guard.TryMark(ctx, 7, day)
	assert.Error(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPruneIsNoop(t *testing.T) {
	client, mock := redismock.NewClientMock()
	assert.NoError(t, NewRedis(client).Prune(context.Background(), time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
