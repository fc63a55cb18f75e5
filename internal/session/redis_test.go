package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreSaveAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisStore(db, time.Hour)
	ctx := context.Background()

	s := sampleSession()
	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectSet("tix:session:s-1", data, time.Hour).SetVal("OK")
	require.NoError(t, store.Save(ctx, s))

	mock.ExpectGet("tix:session:s-1").SetVal(string(data))
	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisStore(db, 0)
	ctx := context.Background()

	mock.ExpectGet("tix:session:gone").RedisNil()
	_, err := store.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectDel("tix:session:gone").SetVal(0)
	assert.ErrorIs(t, store.Delete(ctx, "gone"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisStore(db, time.Minute)
	ctx := context.Background()

	mock.ExpectGet("tix:session:s-1").SetErr(errors.New("connection refused"))
	_, err := store.Get(ctx, "s-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	mock.ExpectGet("tix:session:s-1").SetVal("{not json")
	_, err = store.Get(ctx, "s-1")
	assert.Error(t, err)

	mock.ExpectPing().SetErr(errors.New("down"))
	assert.Error(t, store.Ping(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}
