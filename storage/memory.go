package storage

import (
	"context"
	"sync"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
)

// memoryBackend Backend held in process memory
type memoryBackend struct {
	common.Component
	settings    map[string]common.ChannelConfig
	credentials map[string]common.Credentials
	lock        sync.RWMutex
}

// NewMemoryBackend define an in-memory settings store
func NewMemoryBackend() Backend {
	logTags := log.Fields{"module": "storage", "component": "memory-backed"}
	return &memoryBackend{
		Component:   common.Component{LogTags: logTags},
		settings:    make(map[string]common.ChannelConfig),
		credentials: make(map[string]common.Credentials),
	}
}

// EnumerateAll fetch all stored channel settings
func (s *memoryBackend) EnumerateAll(ctxt context.Context) (map[string]common.ChannelConfig, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	result := make(map[string]common.ChannelConfig, len(s.settings))
	for label, cfg := range s.settings {
		result[label] = cfg
	}
	return result, nil
}

// Retrieve fetch the settings of one channel
func (s *memoryBackend) Retrieve(
	ctxt context.Context, channelLabel string,
) (common.ChannelConfig, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	cfg, ok := s.settings[channelLabel]
	if !ok {
		return common.ChannelConfig{}, ErrChannelNotFound
	}
	return cfg, nil
}

// Save record the settings of a channel, and optionally its credentials
func (s *memoryBackend) Save(
	ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.settings[cfg.ChannelLabel] = cfg
	if creds != nil {
		s.credentials[cfg.ChannelLabel] = *creds
	}
	log.WithFields(s.LogTags).Debugf("Saved %s", cfg)
	return nil
}

// Delete remove the settings and credentials of a channel
func (s *memoryBackend) Delete(ctxt context.Context, channelLabel string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.settings, channelLabel)
	delete(s.credentials, channelLabel)
	return nil
}

// GetCredentials fetch the stored credentials of a channel
func (s *memoryBackend) GetCredentials(
	ctxt context.Context, cfg common.ChannelConfig,
) (common.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	creds, ok := s.credentials[cfg.ChannelLabel]
	if !ok {
		return common.Credentials{}, credentialLookupError(cfg.ChannelLabel, ErrCredentialsNotFound)
	}
	return creds, nil
}

// Ready check whether the backend is reachable
func (s *memoryBackend) Ready(ctxt context.Context) error {
	return nil
}

// Close release the backend
func (s *memoryBackend) Close() error {
	return nil
}
