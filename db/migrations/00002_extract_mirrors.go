package migrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

func init() {
	goose.AddMigrationContext(upExtractMirrors, downExtractMirrors)
}

// upExtractMirrors moves the survey endpoint overrides out of the JSON blob
// on the app table and into their own mirror table, one row per survey.
func upExtractMirrors(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE mirror (
			survey TEXT PRIMARY KEY,
			override TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating mirror table : %w", err)
	}

	var mirrorsJSON sql.NullString
	err = tx.QueryRow("SELECT mirrors FROM app LIMIT 1").Scan(&mirrorsJSON)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading mirror overrides : %w", err)
	}

	if mirrorsJSON.Valid && mirrorsJSON.String != "" {
		var overrides map[string]string
		if err := json.Unmarshal([]byte(mirrorsJSON.String), &overrides); err != nil {
			return fmt.Errorf("decoding mirror overrides : %w", err)
		}

		for survey, override := range overrides {
			if override == "" {
				continue
			}
			_, err = tx.Exec("INSERT INTO mirror (survey, override) VALUES (?, ?)", survey, override)
			if err != nil {
				return fmt.Errorf("migrating mirror for %s : %w", survey, err)
			}
		}
	}

	_, err = tx.Exec("ALTER TABLE app DROP COLUMN mirrors")
	if err != nil {
		return fmt.Errorf("dropping mirrors column : %w", err)
	}
	return nil
}

// downExtractMirrors folds the mirror rows back into a JSON column on the app table.
func downExtractMirrors(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.Exec("ALTER TABLE app ADD COLUMN mirrors TEXT NOT NULL DEFAULT '{}'")
	if err != nil {
		return fmt.Errorf("adding mirrors column back : %w", err)
	}

	rows, err := tx.Query("SELECT survey, override FROM mirror")
	if err != nil {
		return fmt.Errorf("reading mirror rows : %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var survey, override string
		if err := rows.Scan(&survey, &override); err != nil {
			return fmt.Errorf("scanning mirror row : %w", err)
		}
		overrides[survey] = override
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating mirror rows : %w", err)
	}

	marshalled, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("encoding mirror overrides : %w", err)
	}

	_, err = tx.Exec("UPDATE app SET mirrors = ?", string(marshalled))
	if err != nil {
		return fmt.Errorf("writing mirror overrides : %w", err)
	}

	_, err = tx.Exec("DROP TABLE mirror")
	if err != nil {
		return fmt.Errorf("dropping mirror table : %w", err)
	}
	return nil
}
