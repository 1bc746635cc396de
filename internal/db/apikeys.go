package db

import (
	"database/sql"
	"time"

	"github.com/rsclarke/crawlguard/internal/models"
)

// CreateAPIKey inserts a new API key into the database and returns its ID.
func CreateAPIKey(d *sql.DB, prefix string, hash []byte) (int64, error) {
	result, err := d.Exec(
		"INSERT INTO api_keys (key_prefix, key_hash, created_at) VALUES (?, ?, ?)",
		prefix, hash, time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetAPIKeyByPrefix retrieves an API key by its prefix.
func GetAPIKeyByPrefix(d *sql.DB, prefix string) (*models.APIKey, error) {
	row := d.QueryRow(
		"SELECT id, key_prefix, key_hash, created_at, revoked_at FROM api_keys WHERE key_prefix = ?",
		prefix,
	)
	var key models.APIKey
	err := row.Scan(&key.ID, &key.KeyPrefix, &key.KeyHash, &key.CreatedAt, &key.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func ListAPIKeys(d *sql.DB) ([]models.APIKey, error) {
	rows, err := d.Query("SELECT id, key_prefix, key_hash, created_at, revoked_at FROM api_keys ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var key models.APIKey
		if err := rows.Scan(&key.ID, &key.KeyPrefix, &key.KeyHash, &key.CreatedAt, &key.RevokedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks the key with the given prefix as revoked. It reports
// whether a key was actually revoked.
func RevokeAPIKey(d *sql.DB, prefix string) (bool, error) {
	result, err := d.Exec(
		"UPDATE api_keys SET revoked_at = ? WHERE key_prefix = ? AND revoked_at IS NULL",
		time.Now().Unix(), prefix,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountAPIKeys returns the number of non-revoked API keys in the database.
func CountAPIKeys(d *sql.DB) (int, error) {
	var count int
	err := d.QueryRow("SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL").Scan(&count)
	return count, err
}
