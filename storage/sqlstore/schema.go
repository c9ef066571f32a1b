package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []struct {
	name string
	ddl  string
}{
	{"clients", `
		CREATE TABLE IF NOT EXISTS clients (
			client_id          VARCHAR(255) NOT NULL PRIMARY KEY,
			client_name        VARCHAR(255) NOT NULL,
			client_type        VARCHAR(32)  NOT NULL,
			client_secret_hash VARCHAR(255) NOT NULL,
			redirect_uris      TEXT         NOT NULL,
			scopes             TEXT         NOT NULL,
			grant_types        TEXT         NOT NULL,
			access_token_ttl   BIGINT       NOT NULL,
			refresh_token_ttl  BIGINT       NOT NULL,
			is_default         BOOLEAN      NOT NULL,
			consent_required   BOOLEAN      NOT NULL,
			created_at         BIGINT       NOT NULL
		)`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id            VARCHAR(255) NOT NULL PRIMARY KEY,
			username      VARCHAR(255) NOT NULL UNIQUE,
			email         VARCHAR(255) NOT NULL,
			first_name    VARCHAR(255) NOT NULL,
			last_name     VARCHAR(255) NOT NULL,
			active        BOOLEAN      NOT NULL,
			password_hash VARCHAR(255) NOT NULL
		)`},
	{"authorization_codes", `
		CREATE TABLE IF NOT EXISTS authorization_codes (
			code_hash             CHAR(64)     NOT NULL PRIMARY KEY,
			client_id             VARCHAR(255) NOT NULL,
			user_id               VARCHAR(255) NOT NULL,
			redirect_uri          TEXT         NOT NULL,
			scopes                TEXT         NOT NULL,
			code_challenge        VARCHAR(255) NOT NULL,
			code_challenge_method VARCHAR(16)  NOT NULL,
			expires_at            BIGINT       NOT NULL,
			consumed              BOOLEAN      NOT NULL,
			created_at            BIGINT       NOT NULL
		)`},
	{"access_tokens", `
		CREATE TABLE IF NOT EXISTS access_tokens (
			token_hash CHAR(64)     NOT NULL PRIMARY KEY,
			id         VARCHAR(64)  NOT NULL,
			client_id  VARCHAR(255) NOT NULL,
			user_id    VARCHAR(255) NOT NULL,
			scopes     TEXT         NOT NULL,
			expires_at BIGINT       NOT NULL,
			revoked    BOOLEAN      NOT NULL,
			created_at BIGINT       NOT NULL
		)`},
	{"refresh_tokens", `
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token_hash CHAR(64)     NOT NULL PRIMARY KEY,
			id         VARCHAR(64)  NOT NULL,
			client_id  VARCHAR(255) NOT NULL,
			user_id    VARCHAR(255) NOT NULL,
			scopes     TEXT         NOT NULL,
			expires_at BIGINT       NOT NULL,
			revoked    BOOLEAN      NOT NULL,
			rotated_to VARCHAR(64)  NOT NULL,
			created_at BIGINT       NOT NULL
		)`},
	{"device_codes", `
		CREATE TABLE IF NOT EXISTS device_codes (
			device_code      VARCHAR(255) NOT NULL PRIMARY KEY,
			id               VARCHAR(64)  NOT NULL,
			user_code        VARCHAR(32)  NOT NULL UNIQUE,
			client_id        VARCHAR(255) NOT NULL,
			user_id          VARCHAR(255) NOT NULL,
			scopes           TEXT         NOT NULL,
			expires_at       BIGINT       NOT NULL,
			interval_seconds BIGINT       NOT NULL,
			authorized       BOOLEAN      NOT NULL,
			consumed         BOOLEAN      NOT NULL,
			created_at       BIGINT       NOT NULL
		)`},
	{"consents", `
		CREATE TABLE IF NOT EXISTS consents (
			user_id    VARCHAR(255) NOT NULL,
			client_id  VARCHAR(255) NOT NULL,
			scopes     TEXT         NOT NULL,
			granted_at BIGINT       NOT NULL,
			PRIMARY KEY (user_id, client_id)
		)`},
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, t := range schema {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to init '%s' table schema: %w", t.name, err)
		}
	}
	return nil
}
