package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/utils"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	cred := user
	if pass != "" {
		cred = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		cred, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// The name and message columns use a binary collation so the dedup key
// on unique messages compares byte-equal and case-sensitive.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id CHAR(36) NOT NULL,
		name VARCHAR(255) COLLATE utf8mb4_bin NOT NULL,
		message TEXT COLLATE utf8mb4_bin,
		errorlevel CHAR(5) NOT NULL,
		time_raised DATETIME NOT NULL,
		read_flag BOOL NOT NULL DEFAULT FALSE,
		PRIMARY KEY (id),
		KEY idx_messages_dedup (name, message(191)),
		KEY idx_messages_time (time_raised)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id CHAR(36) NOT NULL,
		username VARCHAR(255) NOT NULL,
		password VARCHAR(255) NOT NULL,
		access TINYINT UNSIGNED NOT NULL DEFAULT 0,
		memo TEXT,
		last_active DATETIME NULL,
		bearer_token_key VARBINARY(64) NULL,
		bearer_token_expiry DATETIME NULL,
		refresh_token_key VARBINARY(64) NULL,
		refresh_token_expiry DATETIME NULL,
		PRIMARY KEY (user_id),
		UNIQUE KEY uq_users_username (username)
	)`,
	`CREATE TABLE IF NOT EXISTS client_grants (
		client_id CHAR(36) NOT NULL,
		name VARCHAR(255) NOT NULL,
		memo TEXT,
		access TINYINT UNSIGNED NOT NULL DEFAULT 0,
		bearer_token_key VARBINARY(64) NULL,
		bearer_token_expiry DATETIME NULL,
		refresh_token_key VARBINARY(64) NULL,
		refresh_token_expiry DATETIME NULL,
		PRIMARY KEY (client_id)
	)`,
}

// InitSchema creates the service tables when they do not exist and, when
// no administrative user is present, seeds one from the given
// credentials. The statements are idempotent; running against an
// already-initialized database is a no-op.
func InitSchema(ctx context.Context, db *sql.DB, adminUser, adminPass string, bcryptCost int) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	if adminUser == "" || adminPass == "" {
		return nil
	}

	adminBits := auth.PermissionsForLevel(auth.LevelAdmin).Encode()
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE (access & ?) = ?", adminBits, adminBits).Scan(&count)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword(adminPass, bcryptCost)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO users (user_id, username, password, access, memo) VALUES (?,?,?,?,'Default User')",
		uuid.NewString(), adminUser, hash, adminBits)
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	log.Printf("database: created administrative user %q", adminUser)
	return nil
}
