package db

import (
	"database/sql"

	"github.com/rsclarke/crawlguard/internal/models"
)

// InsertVerification records one verification decision and returns its ID.
func InsertVerification(d *sql.DB, v *models.Verification) (int64, error) {
	result, err := d.Exec(
		`INSERT INTO verifications
		(occurred_at, addr, user_agent, identity, hostname, rdns_verified, range_verified, legitimate, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.OccurredAt, v.Addr, v.UserAgent, v.Identity, v.Hostname,
		boolToInt(v.DNSVerified), boolToInt(v.RangeVerified), boolToInt(v.Legitimate), v.Reason,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListVerifications returns the most recent verification records, newest
// first, up to limit.
func ListVerifications(d *sql.DB, limit int) ([]models.Verification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.Query(
		`SELECT id, occurred_at, addr, user_agent, identity, hostname,
		rdns_verified, range_verified, legitimate, reason
		FROM verifications ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVerifications(rows)
}

// ListVerificationsByAddr returns the most recent records for one source
// address, newest first, up to limit.
func ListVerificationsByAddr(d *sql.DB, addr string, limit int) ([]models.Verification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.Query(
		`SELECT id, occurred_at, addr, user_agent, identity, hostname,
		rdns_verified, range_verified, legitimate, reason
		FROM verifications WHERE addr = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`, addr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVerifications(rows)
}

func scanVerifications(rows *sql.Rows) ([]models.Verification, error) {
	var records []models.Verification
	for rows.Next() {
		var v models.Verification
		var dnsOK, rangeOK, legitimate int
		err := rows.Scan(&v.ID, &v.OccurredAt, &v.Addr, &v.UserAgent, &v.Identity,
			&v.Hostname, &dnsOK, &rangeOK, &legitimate, &v.Reason)
		if err != nil {
			return nil, err
		}
		v.DNSVerified = dnsOK != 0
		v.RangeVerified = rangeOK != 0
		v.Legitimate = legitimate != 0
		records = append(records, v)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
