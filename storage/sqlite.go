package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/streammux/common"
	"github.com/apex/log"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteBackend Backend storing settings and credentials in one sqlite table
type sqliteBackend struct {
	common.Component
	db    *sql.DB
	table string
}

// NewSQLiteBackend define a sqlite backed settings store. The table is created when missing.
func NewSQLiteBackend(ctxt context.Context, config common.SQLiteConfig) (Backend, error) {
	db, err := sql.Open("sqlite3", config.DBFile)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctxt); err != nil {
		_ = db.Close()
		return nil, err
	}
	createTable := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			channel_label TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			credentials TEXT,
			updated_at TEXT NOT NULL
		)`, config.Table,
	)
	if _, err := db.ExecContext(ctxt, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to prepare table %s: %w", config.Table, err)
	}
	logTags := log.Fields{
		"module": "storage", "component": "sqlite-backed", "instance": config.Table,
	}
	log.WithFields(logTags).Infof("Opened %s", config.DBFile)
	return &sqliteBackend{
		Component: common.Component{LogTags: logTags},
		db:        db,
		table:     config.Table,
	}, nil
}

// EnumerateAll fetch all stored channel settings
func (s *sqliteBackend) EnumerateAll(ctxt context.Context) (map[string]common.ChannelConfig, error) {
	rows, err := s.db.QueryContext(
		ctxt, fmt.Sprintf("SELECT channel_label, config FROM %s", s.table),
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Failed to enumerate settings")
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]common.ChannelConfig)
	for rows.Next() {
		var label string
		var cfg common.ChannelConfig
		if err := rows.Scan(&label, &cfg); err != nil {
			return nil, err
		}
		result[label] = cfg
	}
	return result, rows.Err()
}

// Retrieve fetch the settings of one channel
func (s *sqliteBackend) Retrieve(
	ctxt context.Context, channelLabel string,
) (common.ChannelConfig, error) {
	var cfg common.ChannelConfig
	err := s.db.QueryRowContext(
		ctxt, fmt.Sprintf("SELECT config FROM %s WHERE channel_label = ?", s.table), channelLabel,
	).Scan(&cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, ErrChannelNotFound
	}
	return cfg, err
}

// Save record the settings of a channel, and optionally its credentials
func (s *sqliteBackend) Save(
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
	_, err = s.db.ExecContext(
		ctxt,
		fmt.Sprintf(
			`INSERT INTO %s (channel_label, config, credentials, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(channel_label) DO UPDATE SET
				config = excluded.config,
				credentials = COALESCE(excluded.credentials, credentials),
				updated_at = excluded.updated_at`, s.table,
		),
		cfg.ChannelLabel, encodedCfg, encodedCreds, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Failed to save %s", cfg)
		return err
	}
	log.WithFields(s.LogTags).Debugf("Saved %s", cfg)
	return nil
}

// Delete remove the settings and credentials of a channel
func (s *sqliteBackend) Delete(ctxt context.Context, channelLabel string) error {
	_, err := s.db.ExecContext(
		ctxt, fmt.Sprintf("DELETE FROM %s WHERE channel_label = ?", s.table), channelLabel,
	)
	return err
}

// GetCredentials fetch the stored credentials of a channel
func (s *sqliteBackend) GetCredentials(
	ctxt context.Context, cfg common.ChannelConfig,
) (common.Credentials, error) {
	var creds common.Credentials
	var encoded sql.NullString
	err := s.db.QueryRowContext(
		ctxt,
		fmt.Sprintf("SELECT credentials FROM %s WHERE channel_label = ?", s.table),
		cfg.ChannelLabel,
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !encoded.Valid) {
		return creds, credentialLookupError(cfg.ChannelLabel, ErrCredentialsNotFound)
	}
	if err != nil {
		return creds, credentialLookupError(cfg.ChannelLabel, err)
	}
	if err := creds.Scan(encoded.String); err != nil {
		return creds, credentialLookupError(cfg.ChannelLabel, err)
	}
	return creds, nil
}

// Ready check whether the backend is reachable
func (s *sqliteBackend) Ready(ctxt context.Context) error {
	return s.db.PingContext(ctxt)
}

// Close release the backend
func (s *sqliteBackend) Close() error {
	return s.db.Close()
}
