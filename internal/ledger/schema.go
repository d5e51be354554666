package ledger

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

func createSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func currentSchemaVersion(db *sql.DB) (int, bool, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&exists)
	if err != nil {
		return 0, false, fmt.Errorf("inspect schema: %w", err)
	}
	if exists == 0 {
		return 0, false, nil
	}

	var version int
	if err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, true, nil
}

func ensureSchema(db *sql.DB) error {
	version, ok, err := currentSchemaVersion(db)
	if err != nil {
		return err
	}
	if !ok {
		return createSchema(db)
	}
	if version != schemaVersion {
		return fmt.Errorf("ledger schema version %d is not supported (want %d)", version, schemaVersion)
	}
	return nil
}
