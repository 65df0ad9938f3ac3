package handlers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/policyworks/quotaledger/internal/core"
	apperrors "github.com/policyworks/quotaledger/internal/errors"
	"github.com/policyworks/quotaledger/internal/metrics"
	"github.com/policyworks/quotaledger/internal/rules"
)

// maxBodyBytes bounds rule request bodies.
const maxBodyBytes = 64 << 10

var ruleSet atomic.Pointer[rules.Set]

// SetRuleSet installs the rules served by the /v1/rules handlers.
func SetRuleSet(set *rules.Set) {
	ruleSet.Store(set)
}

func currentRuleSet() *rules.Set {
	return ruleSet.Load()
}

// RuleInfo describes one configured rule.
type RuleInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Quota bool   `json:"quota"`
}

type RuleListResponse struct {
	Rules []RuleInfo `json:"rules"`
}

// EvaluationRequest is the body of approve and use calls. IDs are hex.
type EvaluationRequest struct {
	ProfileID    string   `json:"profile_id"`
	ProfileWords []string `json:"profile_words,omitempty"`
	RequestType  string   `json:"request_type,omitempty"`
	DeviceID     string   `json:"device_id,omitempty"`
}

type ApprovalResponse struct {
	RuleID   string `json:"rule_id"`
	Approved bool   `json:"approved"`
}

// QuotaResponse is a read-only view of one caller's ledger row.
type QuotaResponse struct {
	RuleID    string `json:"rule_id"`
	ProfileID string `json:"profile_id"`
	AtQuota   bool   `json:"at_quota"`
	HourCount int    `json:"hour_count"`
	DayCount  int    `json:"day_count"`
	Locked    bool   `json:"locked"`
}

type usageReporter interface {
	Usage(ctx context.Context, profile rules.ProfileInfo) (core.QuotaRecord, error)
}

// ListRulesHandler serves GET /v1/rules.
func ListRulesHandler(w http.ResponseWriter, r *http.Request) {
	resp := RuleListResponse{Rules: []RuleInfo{}}
	if set := currentRuleSet(); set != nil {
		for _, rule := range set.List() {
			_, quota := rule.(rules.QuotaRule)
			resp.Rules = append(resp.Rules, RuleInfo{ID: rule.ID(), Name: rule.Name(), Quota: quota})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApproveHandler serves POST /v1/rules/{ruleID}/approve. An approved quota
// request holds the caller's row until the matching use call or lock expiry.
func ApproveHandler(w http.ResponseWriter, r *http.Request) {
	rule, ok := lookupRule(w, r)
	if !ok {
		return
	}
	req, ok := decodeEvaluation(w, r)
	if !ok {
		return
	}

	start := time.Now()
	approved, err := rule.ApproveRequest(r.Context(), req)
	if err != nil {
		metrics.RecordRuleError(rule.Name(), "approve")
		respondWithError(w, r, err)
		return
	}
	metrics.RecordRuleEvaluation(rule.Name(), approved, time.Since(start))

	writeJSON(w, http.StatusOK, ApprovalResponse{RuleID: rule.ID(), Approved: approved})
}

// UseHandler serves POST /v1/rules/{ruleID}/use.
func UseHandler(w http.ResponseWriter, r *http.Request) {
	qr, ok := lookupQuotaRule(w, r)
	if !ok {
		return
	}
	req, ok := decodeEvaluation(w, r)
	if !ok {
		return
	}

	if err := qr.UseQuota(r.Context(), req); err != nil {
		metrics.RecordRuleError(qr.Name(), "use")
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QuotaHandler serves GET /v1/rules/{ruleID}/quota/{profileID}.
func QuotaHandler(w http.ResponseWriter, r *http.Request) {
	qr, ok := lookupQuotaRule(w, r)
	if !ok {
		return
	}
	profile, ok := profileFromPath(w, r)
	if !ok {
		return
	}

	atQuota, err := qr.AtQuota(r.Context(), profile)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	resp := QuotaResponse{
		RuleID:    qr.ID(),
		ProfileID: hex.EncodeToString(profile.ID),
		AtQuota:   atQuota,
	}
	if ur, ok := qr.(usageReporter); ok {
		rec, err := ur.Usage(r.Context(), profile)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		resp.HourCount = rec.HourCount
		resp.DayCount = rec.DayCount
		resp.Locked = rec.Locked()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearQuotaHandler serves DELETE /v1/rules/{ruleID}/quota/{profileID}.
func ClearQuotaHandler(w http.ResponseWriter, r *http.Request) {
	qr, ok := lookupQuotaRule(w, r)
	if !ok {
		return
	}
	profile, ok := profileFromPath(w, r)
	if !ok {
		return
	}
	if err := qr.ClearQuota(r.Context(), profile); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func lookupRule(w http.ResponseWriter, r *http.Request) (rules.Rule, bool) {
	ruleID := chi.URLParam(r, "ruleID")
	set := currentRuleSet()
	if set == nil {
		respondWithError(w, r, apperrors.NewRuleNotFoundError(ruleID))
		return nil, false
	}
	rule, ok := set.Get(ruleID)
	if !ok {
		respondWithError(w, r, apperrors.NewRuleNotFoundError(ruleID))
		return nil, false
	}
	return rule, true
}

func lookupQuotaRule(w http.ResponseWriter, r *http.Request) (rules.QuotaRule, bool) {
	rule, ok := lookupRule(w, r)
	if !ok {
		return nil, false
	}
	qr, ok := rule.(rules.QuotaRule)
	if !ok {
		respondWithError(w, r, apperrors.NewNotQuotaRuleError(rule.ID()))
		return nil, false
	}
	return qr, true
}

func decodeEvaluation(w http.ResponseWriter, r *http.Request) (rules.Request, bool) {
	var body EvaluationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body is not valid JSON"))
		return rules.Request{}, false
	}

	req := rules.Request{Type: rules.RequestType(strings.TrimSpace(body.RequestType))}
	if body.DeviceID != "" {
		device, err := hex.DecodeString(body.DeviceID)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "device_id must be hex"))
			return rules.Request{}, false
		}
		req.DeviceID = device
	}
	if body.ProfileID != "" || len(body.ProfileWords) > 0 {
		id, err := hex.DecodeString(body.ProfileID)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "profile_id must be hex"))
			return rules.Request{}, false
		}
		req.Profile = &rules.ProfileInfo{ID: id, Words: body.ProfileWords}
	}
	return req, true
}

func profileFromPath(w http.ResponseWriter, r *http.Request) (rules.ProfileInfo, bool) {
	id, err := hex.DecodeString(chi.URLParam(r, "profileID"))
	if err != nil || len(id) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("profile id must be non-empty hex"))
		return rules.ProfileInfo{}, false
	}
	return rules.ProfileInfo{ID: id}, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
