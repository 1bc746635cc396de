// Package server implements the verification API server.
package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rsclarke/crawlguard/internal/api"
	"github.com/rsclarke/crawlguard/internal/auth"
	"github.com/rsclarke/crawlguard/internal/db"
	"github.com/rsclarke/crawlguard/internal/logging"
	"github.com/rsclarke/crawlguard/internal/models"
	"github.com/rsclarke/crawlguard/internal/verifier"
	"go.uber.org/zap"
)

// APIServer exposes the verification engine and its audit log over HTTP.
type APIServer struct {
	DB     *sql.DB
	Engine *verifier.Engine
	Logger *zap.Logger

	// RequireBoth applies the strict combination policy to requests that
	// do not set the policy explicitly.
	RequireBoth bool
}

// AuthMiddleware validates API key authentication for protected routes.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		prefix, _, err := auth.ParseAPIKey(apiKey)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		storedKey, err := db.GetAPIKeyByPrefix(s.DB, prefix)
		if err != nil || storedKey == nil {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		if storedKey.RevokedAt != nil {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		if !auth.VerifyAPIKey(apiKey, storedKey.KeyHash) {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /v1/verify", s.handleVerify)
	apiMux.HandleFunc("GET /v1/identities", s.handleListIdentities)
	apiMux.HandleFunc("GET /v1/verifications", s.handleListVerifications)

	mux := http.NewServeMux()
	mux.Handle("/v1/", s.AuthMiddleware(apiMux))
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}

func (s *APIServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.IP == "" || req.UserAgent == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "ip and user_agent are required"})
		return
	}

	result := s.Engine.Verify(r.Context(), verifier.Request{
		Addr:        req.IP,
		UserAgent:   req.UserAgent,
		RequireBoth: req.RequireBoth || s.RequireBoth,
	})

	record := models.Verification{
		OccurredAt:    time.Now().Unix(),
		Addr:          result.Addr,
		UserAgent:     result.UserAgent,
		Identity:      string(result.Identity),
		Hostname:      result.Hostname,
		DNSVerified:   result.DNSVerified,
		RangeVerified: result.RangeVerified,
		Legitimate:    result.Legitimate,
		Reason:        result.Reason,
	}
	if _, err := db.InsertVerification(s.DB, &record); err != nil {
		// The decision is still served; only the audit trail is degraded.
		s.Logger.Warn("failed to record verification", logging.Addr(result.Addr), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, api.VerifyResponse{
		IP:            result.Addr,
		UserAgent:     result.UserAgent,
		Identity:      string(result.Identity),
		RDNSHostname:  result.Hostname,
		RDNSVerified:  result.DNSVerified,
		RangeVerified: result.RangeVerified,
		Legitimate:    result.Legitimate,
		Reason:        result.Reason,
	})
}

func (s *APIServer) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	registry := s.Engine.Registry()

	resp := api.ListIdentitiesResponse{}
	for _, key := range registry.Keys() {
		profile := registry.Profile(key)
		info := api.IdentityInfo{
			Key:          string(key),
			RangeSources: profile.RangeSources,
		}
		for _, re := range profile.Suffixes {
			info.Suffixes = append(info.Suffixes, re.String())
		}
		if profile.HasRangeSource() {
			info.RangeState = string(s.Engine.RangeState(key))
		}
		resp.Identities = append(resp.Identities, info)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var records []models.Verification
	var err error
	if addr := r.URL.Query().Get("ip"); addr != "" {
		records, err = db.ListVerificationsByAddr(s.DB, addr, limit)
	} else {
		records, err = db.ListVerifications(s.DB, limit)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp := api.ListVerificationsResponse{
		Verifications: make([]api.VerificationRecord, 0, len(records)),
	}
	for _, v := range records {
		resp.Verifications = append(resp.Verifications, api.VerificationRecord{
			ID:            v.ID,
			OccurredAt:    time.Unix(v.OccurredAt, 0).UTC().Format(time.RFC3339),
			IP:            v.Addr,
			UserAgent:     v.UserAgent,
			Identity:      v.Identity,
			RDNSHostname:  v.Hostname,
			RDNSVerified:  v.DNSVerified,
			RangeVerified: v.RangeVerified,
			Legitimate:    v.Legitimate,
			Reason:        v.Reason,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
