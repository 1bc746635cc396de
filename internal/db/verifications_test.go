package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rsclarke/crawlguard/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndListVerifications(t *testing.T) {
	db := openTestDB(t)

	records := []models.Verification{
		{
			OccurredAt:    1000,
			Addr:          "66.249.66.1",
			UserAgent:     "Googlebot/2.1",
			Identity:      "googlebot",
			Hostname:      "crawl-66-249-66-1.googlebot.com",
			DNSVerified:   true,
			RangeVerified: true,
			Legitimate:    true,
			Reason:        "verified by dual DNS and published ranges",
		},
		{
			OccurredAt: 2000,
			Addr:       "5.9.0.1",
			UserAgent:  "Googlebot/2.1",
			Identity:   "googlebot",
			Reason:     "verification failed; crawler impersonation suspected",
		},
	}

	for i := range records {
		id, err := InsertVerification(db, &records[i])
		if err != nil {
			t.Fatalf("InsertVerification %d failed: %v", i, err)
		}
		if id == 0 {
			t.Errorf("InsertVerification %d returned id 0", i)
		}
	}

	got, err := ListVerifications(db, 10)
	if err != nil {
		t.Fatalf("ListVerifications failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListVerifications returned %d records, want 2", len(got))
	}

	// Newest first.
	if got[0].Addr != "5.9.0.1" {
		t.Errorf("first record addr = %q, want newest", got[0].Addr)
	}
	if got[0].Legitimate || got[0].DNSVerified || got[0].RangeVerified {
		t.Error("spoofed record flags should all be false")
	}
	if !got[1].Legitimate || !got[1].DNSVerified || !got[1].RangeVerified {
		t.Error("verified record flags should all be true")
	}
	if got[1].Hostname != "crawl-66-249-66-1.googlebot.com" {
		t.Errorf("hostname = %q", got[1].Hostname)
	}
}

func TestListVerificationsLimit(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		v := models.Verification{OccurredAt: int64(i), Addr: "1.2.3.4", UserAgent: "x"}
		if _, err := InsertVerification(db, &v); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := ListVerifications(db, 3)
	if err != nil {
		t.Fatalf("ListVerifications failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d records, want 3", len(got))
	}
}

func TestListVerificationsByAddr(t *testing.T) {
	db := openTestDB(t)

	for _, addr := range []string{"1.1.1.1", "2.2.2.2", "1.1.1.1"} {
		v := models.Verification{OccurredAt: 1, Addr: addr, UserAgent: "x"}
		if _, err := InsertVerification(db, &v); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := ListVerificationsByAddr(db, "1.1.1.1", 10)
	if err != nil {
		t.Fatalf("ListVerificationsByAddr failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d records for addr, want 2", len(got))
	}
	for _, v := range got {
		if v.Addr != "1.1.1.1" {
			t.Errorf("record addr = %q, want 1.1.1.1", v.Addr)
		}
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	db := openTestDB(t)

	id, err := CreateAPIKey(db, "abcdef123456", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if id == 0 {
		t.Error("CreateAPIKey returned id 0")
	}

	key, err := GetAPIKeyByPrefix(db, "abcdef123456")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix failed: %v", err)
	}
	if key == nil {
		t.Fatal("key not found")
	}
	if key.RevokedAt != nil {
		t.Error("fresh key already revoked")
	}

	count, err := CountAPIKeys(db)
	if err != nil {
		t.Fatalf("CountAPIKeys failed: %v", err)
	}
	if count != 1 {
		t.Errorf("CountAPIKeys = %d, want 1", count)
	}

	revoked, err := RevokeAPIKey(db, "abcdef123456")
	if err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}
	if !revoked {
		t.Error("RevokeAPIKey = false, want true")
	}

	key, err = GetAPIKeyByPrefix(db, "abcdef123456")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix after revoke failed: %v", err)
	}
	if key.RevokedAt == nil {
		t.Error("RevokedAt still nil after revoke")
	}

	// Revoking again is a no-op.
	revoked, err = RevokeAPIKey(db, "abcdef123456")
	if err != nil {
		t.Fatalf("second RevokeAPIKey failed: %v", err)
	}
	if revoked {
		t.Error("second revoke reported true")
	}

	count, err = CountAPIKeys(db)
	if err != nil {
		t.Fatalf("CountAPIKeys failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountAPIKeys after revoke = %d, want 0", count)
	}

	if key, err := GetAPIKeyByPrefix(db, "nosuchprefix"); err != nil || key != nil {
		t.Errorf("GetAPIKeyByPrefix for unknown prefix = (%v, %v), want (nil, nil)", key, err)
	}

	keys, err := ListAPIKeys(db)
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("ListAPIKeys = %d keys, want 1", len(keys))
	}
}
