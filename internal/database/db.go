package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cds-extensions/internal/config"
)

// Open connects to MySQL and verifies the connection.
func Open(cfg config.Config) (*sql.DB, error) {
	auth := cfg.DBUser
	if cfg.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", cfg.DBUser, cfg.DBPass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	// clientFoundRows=true -> RowsAffected counts matched rows, not changed ones
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&multiStatements=true&clientFoundRows=true",
		auth, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the metadata, consent and service provider tables
// when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS account_metadata (
    account_id  VARCHAR(255) NOT NULL,
    user_id     VARCHAR(255) NOT NULL,
    meta_key    VARCHAR(255) NOT NULL,
    meta_value  TEXT NOT NULL,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    PRIMARY KEY (account_id, user_id, meta_key),
    KEY idx_account_metadata_user (user_id, meta_key)
);
CREATE TABLE IF NOT EXISTS consents (
    consent_id      VARCHAR(255) NOT NULL PRIMARY KEY,
    client_id       VARCHAR(255) NOT NULL,
    receipt         TEXT NOT NULL,
    consent_type    VARCHAR(64) NOT NULL,
    current_status  VARCHAR(64) NOT NULL,
    expires_at      DATETIME NULL,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_consents_client (client_id, current_status)
);
CREATE TABLE IF NOT EXISTS consent_attributes (
    consent_id  VARCHAR(255) NOT NULL,
    att_key     VARCHAR(255) NOT NULL,
    att_value   TEXT NOT NULL,
    PRIMARY KEY (consent_id, att_key),
    KEY idx_consent_attributes_kv (att_key, att_value(255))
);
CREATE TABLE IF NOT EXISTS authorization_resources (
    auth_id      VARCHAR(255) NOT NULL PRIMARY KEY,
    consent_id   VARCHAR(255) NOT NULL,
    user_id      VARCHAR(255) NOT NULL,
    auth_type    VARCHAR(64) NOT NULL,
    auth_status  VARCHAR(64) NOT NULL,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_auth_consent (consent_id),
    KEY idx_auth_user (user_id)
);
CREATE TABLE IF NOT EXISTS consent_mappings (
    mapping_id      VARCHAR(255) NOT NULL PRIMARY KEY,
    auth_id         VARCHAR(255) NOT NULL,
    account_id      VARCHAR(255) NOT NULL,
    permission      VARCHAR(64) NOT NULL,
    mapping_status  VARCHAR(32) NOT NULL,
    KEY idx_mapping_auth (auth_id),
    KEY idx_mapping_account (account_id)
);
CREATE TABLE IF NOT EXISTS service_providers (
    client_id           VARCHAR(255) NOT NULL PRIMARY KEY,
    software_id         VARCHAR(255) NOT NULL,
    legal_entity_id     VARCHAR(255) NOT NULL,
    recipient_base_uri  VARCHAR(1024) NOT NULL DEFAULT ''
);
`
