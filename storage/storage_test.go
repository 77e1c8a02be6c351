package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func exerciseBackend(t *testing.T, uut Backend) {
	assert := assert.New(t)
	ctxt := context.Background()

	label1 := fmt.Sprintf("ch-%s", uuid.New().String())
	label2 := fmt.Sprintf("ch-%s", uuid.New().String())

	assert.Nil(uut.Ready(ctxt))

	// Case 0: unknown channel
	{
		_, err := uut.Retrieve(ctxt, label1)
		assert.True(errors.Is(err, ErrChannelNotFound))
		_, err = uut.GetCredentials(ctxt, common.ChannelConfig{ChannelLabel: label1})
		var credErr *common.CredentialError
		assert.True(errors.As(err, &credErr))
		assert.True(errors.Is(err, ErrCredentialsNotFound))
	}

	cfg1 := common.ChannelConfig{
		ChannelLabel: label1,
		DisplayFrom:  common.DisplayLastTweet,
		State:        map[string]string{"user": "alice"},
	}
	cfg2 := common.ChannelConfig{ChannelLabel: label2, DisplayFrom: common.DisplayTrends}

	// Case 1: save with credentials
	{
		creds := common.Credentials{AccessToken: "token-1", AccessTokenSecret: "secret-1"}
		assert.Nil(uut.Save(ctxt, cfg1, &creds))
		stored, err := uut.Retrieve(ctxt, label1)
		assert.Nil(err)
		assert.Equal(cfg1, stored)
		storedCreds, err := uut.GetCredentials(ctxt, cfg1)
		assert.Nil(err)
		assert.Equal(creds, storedCreds)
	}

	// Case 2: save without credentials
	{
		assert.Nil(uut.Save(ctxt, cfg2, nil))
		_, err := uut.GetCredentials(ctxt, cfg2)
		assert.True(errors.Is(err, ErrCredentialsNotFound))
	}

	// Case 3: enumerate
	{
		all, err := uut.EnumerateAll(ctxt)
		assert.Nil(err)
		assert.Contains(all, label1)
		assert.Contains(all, label2)
		assert.Equal(common.DisplayTrends, all[label2].DisplayFrom)
	}

	// Case 4: update settings keeps the stored credentials
	{
		cfg1.DisplayFrom = common.DisplayMyProfile
		assert.Nil(uut.Save(ctxt, cfg1, nil))
		stored, err := uut.Retrieve(ctxt, label1)
		assert.Nil(err)
		assert.Equal(common.DisplayMyProfile, stored.DisplayFrom)
		storedCreds, err := uut.GetCredentials(ctxt, cfg1)
		assert.Nil(err)
		assert.Equal("token-1", storedCreds.AccessToken)
	}

	// Case 5: delete
	{
		assert.Nil(uut.Delete(ctxt, label1))
		_, err := uut.Retrieve(ctxt, label1)
		assert.True(errors.Is(err, ErrChannelNotFound))
		_, err = uut.GetCredentials(ctxt, cfg1)
		assert.NotNil(err)
		all, err := uut.EnumerateAll(ctxt)
		assert.Nil(err)
		assert.NotContains(all, label1)
		assert.Nil(uut.Delete(ctxt, label2))
	}
}

func TestMemoryBackend(t *testing.T) {
	log.SetLevel(log.DebugLevel)
	uut := NewMemoryBackend()
	defer func() {
		assert.Nil(t, uut.Close())
	}()
	exerciseBackend(t, uut)
}

func TestSQLiteBackend(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	dbFile := filepath.Join(t.TempDir(), "settings.db")
	uut, err := NewBackend(context.Background(), common.StorageConfig{
		Type:        "sqlite",
		SQLite:      &common.SQLiteConfig{DBFile: dbFile, Table: "channels"},
		CallTimeout: 5,
	})
	assert.Nil(err)
	exerciseBackend(t, uut)
	assert.Nil(uut.Close())

	// Case: re-open an existing table
	{
		again, err := NewSQLiteBackend(
			context.Background(), common.SQLiteConfig{DBFile: dbFile, Table: "channels"},
		)
		assert.Nil(err)
		all, err := again.EnumerateAll(context.Background())
		assert.Nil(err)
		assert.Empty(all)
		assert.Nil(again.Close())
	}
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("STREAMMUX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STREAMMUX_TEST_REDIS_ADDR not set")
	}
	log.SetLevel(log.DebugLevel)
	uut, err := NewBackend(context.Background(), common.StorageConfig{
		Type: "redis",
		Redis: &common.RedisConfig{
			Addr: addr, KeyPrefix: fmt.Sprintf("streammux-test-%s", uuid.New().String()),
		},
		CallTimeout: 5,
	})
	assert.Nil(t, err)
	defer func() {
		assert.Nil(t, uut.Close())
	}()
	exerciseBackend(t, uut)
}

func TestBackendSelection(t *testing.T) {
	assert := assert.New(t)

	// Case 0: memory
	{
		uut, err := NewBackend(context.Background(), common.StorageConfig{Type: "memory"})
		assert.Nil(err)
		assert.NotNil(uut)
	}

	// Case 1: missing parameters
	{
		_, err := NewBackend(context.Background(), common.StorageConfig{Type: "sqlite"})
		assert.NotNil(err)
		_, err = NewBackend(context.Background(), common.StorageConfig{Type: "redis"})
		assert.NotNil(err)
	}

	// Case 2: unknown type
	{
		_, err := NewBackend(context.Background(), common.StorageConfig{Type: "etcd"})
		assert.NotNil(err)
	}
}

// blockingBackend a Backend whose reads wait for the caller's deadline
type blockingBackend struct {
	Backend
}

func (s blockingBackend) Retrieve(
	ctxt context.Context, channelLabel string,
) (common.ChannelConfig, error) {
	<-ctxt.Done()
	return common.ChannelConfig{}, ctxt.Err()
}

func TestBackendCallTimeout(t *testing.T) {
	assert := assert.New(t)

	// Case 0: non-positive timeout leaves the backend unchanged
	{
		backend := NewMemoryBackend()
		assert.Equal(backend, WithCallTimeout(backend, 0))
	}

	// Case 1: calls are bounded
	{
		uut := WithCallTimeout(blockingBackend{Backend: NewMemoryBackend()}, time.Millisecond*20)
		start := time.Now()
		_, err := uut.Retrieve(context.Background(), "ch-1")
		assert.True(errors.Is(err, context.DeadlineExceeded))
		assert.True(time.Since(start) < time.Second)
	}

	// Case 2: other calls pass through
	{
		uut := WithCallTimeout(NewMemoryBackend(), time.Second)
		cfg := common.ChannelConfig{ChannelLabel: "ch-1"}
		assert.Nil(uut.Save(context.Background(), cfg, &common.Credentials{AccessToken: "t"}))
		creds, err := uut.GetCredentials(context.Background(), cfg)
		assert.Nil(err)
		assert.Equal("t", creds.AccessToken)
	}
}
