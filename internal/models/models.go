// Package models defines the database entity types.
package models

// APIKey represents an API key record in the database.
type APIKey struct {
	ID        int64
	KeyPrefix string
	KeyHash   []byte
	CreatedAt int64
	RevokedAt *int64
}

// Verification represents one recorded verification decision.
type Verification struct {
	ID            int64
	OccurredAt    int64
	Addr          string
	UserAgent     string
	Identity      string
	Hostname      string
	DNSVerified   bool
	RangeVerified bool
	Legitimate    bool
	Reason        string
}
