// Package api defines the API request and response types.
package api

// VerifyRequest is the request body for a verification.
type VerifyRequest struct {
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`
	RequireBoth bool   `json:"require_both,omitempty"`
}

// VerifyResponse is the full outcome of one verification.
type VerifyResponse struct {
	IP            string `json:"ip"`
	UserAgent     string `json:"user_agent"`
	Identity      string `json:"identity,omitempty"`
	RDNSHostname  string `json:"rdns_hostname,omitempty"`
	RDNSVerified  bool   `json:"rdns_verified"`
	RangeVerified bool   `json:"range_verified"`
	Legitimate    bool   `json:"legitimate"`
	Reason        string `json:"reason"`
}

// IdentityInfo describes one registered crawler identity.
type IdentityInfo struct {
	Key          string   `json:"key"`
	Suffixes     []string `json:"rdns_suffixes"`
	RangeSources []string `json:"range_sources,omitempty"`
	RangeState   string   `json:"range_state,omitempty"`
}

// ListIdentitiesResponse is the response body for listing identities.
type ListIdentitiesResponse struct {
	Identities []IdentityInfo `json:"identities"`
}

// VerificationRecord is one entry of the verification audit log.
type VerificationRecord struct {
	ID            int64  `json:"id"`
	OccurredAt    string `json:"occurred_at"`
	IP            string `json:"ip"`
	UserAgent     string `json:"user_agent"`
	Identity      string `json:"identity,omitempty"`
	RDNSHostname  string `json:"rdns_hostname,omitempty"`
	RDNSVerified  bool   `json:"rdns_verified"`
	RangeVerified bool   `json:"range_verified"`
	Legitimate    bool   `json:"legitimate"`
	Reason        string `json:"reason"`
}

// ListVerificationsResponse is the response body for the audit log.
type ListVerificationsResponse struct {
	Verifications []VerificationRecord `json:"verifications"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
