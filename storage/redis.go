package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
	"github.com/redis/go-redis/v9"
)

// redisBackend Backend storing settings and credentials as two redis hashes keyed by
// channel label
type redisBackend struct {
	common.Component
	client         *redis.Client
	settingsKey    string
	credentialsKey string
}

// NewRedisBackend define a redis backed settings store
func NewRedisBackend(ctxt context.Context, config common.RedisConfig) (Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	pingCtxt, cancel := context.WithTimeout(ctxt, time.Second*5)
	defer cancel()
	if err := client.Ping(pingCtxt).Err(); err != nil {
		_ = client.Close()
		log.WithError(err).Errorf("Unable to connect with redis server %s", config.Addr)
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logTags := log.Fields{
		"module": "storage", "component": "redis-backed", "instance": config.KeyPrefix,
	}
	log.WithFields(logTags).Infof("Connected with redis server %s", config.Addr)
	return &redisBackend{
		Component:      common.Component{LogTags: logTags},
		client:         client,
		settingsKey:    fmt.Sprintf("%s:settings", config.KeyPrefix),
		credentialsKey: fmt.Sprintf("%s:credentials", config.KeyPrefix),
	}, nil
}

// EnumerateAll fetch all stored channel settings
func (s *redisBackend) EnumerateAll(ctxt context.Context) (map[string]common.ChannelConfig, error) {
	raw, err := s.client.HGetAll(ctxt, s.settingsKey).Result()
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Failed to enumerate settings")
		return nil, err
	}
	result := make(map[string]common.ChannelConfig, len(raw))
	for label, encoded := range raw {
		var cfg common.ChannelConfig
		if err := cfg.Scan(encoded); err != nil {
			log.WithError(err).WithFields(s.LogTags).Errorf("Skipping unparsable settings of %s", label)
			continue
		}
		result[label] = cfg
	}
	return result, nil
}

// Retrieve fetch the settings of one channel
func (s *redisBackend) Retrieve(
	ctxt context.Context, channelLabel string,
) (common.ChannelConfig, error) {
	var cfg common.ChannelConfig
	encoded, err := s.client.HGet(ctxt, s.settingsKey, channelLabel).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cfg, ErrChannelNotFound
		}
		return cfg, err
	}
	err = cfg.Scan(encoded)
	return cfg, err
}

// Save record the settings of a channel, and optionally its credentials
func (s *redisBackend) Save(
	ctxt context.Context, cfg common.ChannelConfig, creds *common.Credentials,
) error {
	encodedCfg, err := cfg.Value()
	if err != nil {
		return err
	}
	var encodedCreds interface{}
	if creds != nil {
		if encodedCreds, err = creds.Value(); err != nil {
			return err
		}
	}
	_, err = s.client.TxPipelined(ctxt, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctxt, s.settingsKey, cfg.ChannelLabel, encodedCfg)
		if encodedCreds != nil {
			pipe.HSet(ctxt, s.credentialsKey, cfg.ChannelLabel, encodedCreds)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Failed to save %s", cfg)
		return err
	}
	log.WithFields(s.LogTags).Debugf("Saved %s", cfg)
	return nil
}

// Delete remove the settings and credentials of a channel
func (s *redisBackend) Delete(ctxt context.Context, channelLabel string) error {
	_, err := s.client.TxPipelined(ctxt, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctxt, s.settingsKey, channelLabel)
		pipe.HDel(ctxt, s.credentialsKey, channelLabel)
		return nil
	})
	return err
}

// GetCredentials fetch the stored credentials of a channel
func (s *redisBackend) GetCredentials(
	ctxt context.Context, cfg common.ChannelConfig,
) (common.Credentials, error) {
	var creds common.Credentials
	encoded, err := s.client.HGet(ctxt, s.credentialsKey, cfg.ChannelLabel).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return creds, credentialLookupError(cfg.ChannelLabel, ErrCredentialsNotFound)
		}
		return creds, credentialLookupError(cfg.ChannelLabel, err)
	}
	if err := creds.Scan(encoded); err != nil {
		return creds, credentialLookupError(cfg.ChannelLabel, err)
	}
	return creds, nil
}

// Ready check whether the backend is reachable
func (s *redisBackend) Ready(ctxt context.Context) error {
	return s.client.Ping(ctxt).Err()
}

// Close release the backend
func (s *redisBackend) Close() error {
	return s.client.Close()
}
