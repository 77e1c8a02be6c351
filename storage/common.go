package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/alwitt/streammux/upstream"
)

// ErrChannelNotFound no settings are stored for the channel
var ErrChannelNotFound = errors.New("channel not found")

// ErrCredentialsNotFound no credentials are stored for the channel
var ErrCredentialsNotFound = errors.New("credentials not found")

// SettingsStore read access to persisted channel settings
type SettingsStore interface {
	/*
		EnumerateAll fetch all stored channel settings

		 @param ctxt context.Context - the operation context
		 @return channel label to settings mapping
	*/
	EnumerateAll(ctxt context.Context) (map[string]common.ChannelConfig, error)

	/*
		Retrieve fetch the settings of one channel

		 @param ctxt context.Context - the operation context
		 @param channelLabel string - the channel
		 @return the settings, or ErrChannelNotFound
	*/
	Retrieve(ctxt context.Context, channelLabel string) (common.ChannelConfig, error)
}

// SettingsWriter write access to persisted channel settings
type SettingsWriter interface {
	/*
		Save record the settings of a channel, and optionally its credentials. Stored
		credentials are kept when creds is nil.

		 @param ctxt context.Context - the operation context
		 @param cfg common.ChannelConfig - the channel settings
		 @param creds *common.Credentials - the subscriber credentials
	*/
	Save(ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials) error

	// Delete remove the settings and credentials of a channel
	Delete(ctxt context.Context, channelLabel string) error
}

// Backend a complete settings store which also serves as the credential source
type Backend interface {
	SettingsStore
	SettingsWriter
	upstream.TokenProvider
	// Ready check whether the backend is reachable
	Ready(ctxt context.Context) error
	// Close release the backend
	Close() error
}

// NewBackend define a settings store backend based on config
func NewBackend(ctxt context.Context, config common.StorageConfig) (Backend, error) {
	switch config.Type {
	case "memory":
		return NewMemoryBackend(), nil
	case "redis":
		if config.Redis == nil {
			return nil, fmt.Errorf("redis backend requested without redis parameters")
		}
		backend, err := NewRedisBackend(ctxt, *config.Redis)
		if err != nil {
			return nil, err
		}
		return WithCallTimeout(backend, time.Second*time.Duration(config.CallTimeout)), nil
	case "sqlite":
		if config.SQLite == nil {
			return nil, fmt.Errorf("sqlite backend requested without sqlite parameters")
		}
		backend, err := NewSQLiteBackend(ctxt, *config.SQLite)
		if err != nil {
			return nil, err
		}
		return WithCallTimeout(backend, time.Second*time.Duration(config.CallTimeout)), nil
	default:
		return nil, fmt.Errorf("unknown storage type %s", config.Type)
	}
}

// timeoutBackend bounds every call of the wrapped Backend
type timeoutBackend struct {
	Backend
	timeout time.Duration
}

// WithCallTimeout wrap a Backend so each call is given at most timeout to complete.
// A non-positive timeout returns the backend unchanged.
func WithCallTimeout(backend Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return backend
	}
	return &timeoutBackend{Backend: backend, timeout: timeout}
}

func (s *timeoutBackend) EnumerateAll(ctxt context.Context) (map[string]common.ChannelConfig, error) {
	useCtxt, cancel := context.WithTimeout(ctxt, s.timeout)
	defer cancel()
	return s.Backend.EnumerateAll(useCtxt)
}

func (s *timeoutBackend) Retrieve(
	ctxt context.Context, channelLabel string,
) (common.ChannelConfig, error) {
	useCtxt, cancel := context.WithTimeout(ctxt, s.timeout)
	defer cancel()
	return s.Backend.Retrieve(useCtxt, channelLabel)
}

func (s *timeoutBackend) Save(
	ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials,
) error {
	useCtxt, cancel := context.WithTimeout(ctxt, s.timeout)
	defer cancel()
	return s.Backend.Save(useCtxt, cfg, creds)
}

func (s *timeoutBackend) Delete(ctxt context.Context, channelLabel string) error {
	useCtxt, cancel := context.WithTimeout(ctxt, s.timeout)
	defer cancel()
	return s.Backend.Delete(useCtxt, channelLabel)
}

func (s *timeoutBackend) GetCredentials(
	ctxt context.Context, cfg common.ChannelConfig,
) (common.Credentials, error) {
	useCtxt, cancel := context.WithTimeout(ctxt, s.timeout)
	defer cancel()
	return s.Backend.GetCredentials(useCtxt, cfg)
}

func (s *timeoutBackend) Ready(ctxt context.Context) error {
	useCtxt, cancel := context.WithTimeout(ctxt, s.timeout)
	defer cancel()
	return s.Backend.Ready(useCtxt)
}

// credentialLookupError wrap a credential lookup failure for a channel
func credentialLookupError(channelLabel string, err error) error {
	return &common.CredentialError{ChannelLabel: channelLabel, Err: err}
}
