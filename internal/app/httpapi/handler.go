package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/strata-social/story_layer/internal/app"
	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/domain/story"
	engagementsvc "github.com/strata-social/story_layer/internal/app/services/engagement"
	"github.com/strata-social/story_layer/internal/errors"
	"github.com/strata-social/story_layer/internal/httputil"
	"github.com/strata-social/story_layer/internal/logging"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *AuditLog
}

// NewHandler returns a router exposing the story REST API. Authentication is
// expected to have run already; handlers read the actor from context.
func NewHandler(application *app.Application, audit *AuditLog) http.Handler {
	h := &handler{app: application, audit: audit}

	r := mux.NewRouter()
	r.HandleFunc("/stories", h.createStory).Methods(http.MethodPost)
	r.HandleFunc("/stories/me", h.listOwn).Methods(http.MethodGet)
	r.HandleFunc("/stories/following", h.listFollowing).Methods(http.MethodGet)
	r.HandleFunc("/stories/{storyId}", h.getStory).Methods(http.MethodGet)
	r.HandleFunc("/stories/{storyId}", h.deleteStory).Methods(http.MethodDelete)
	r.HandleFunc("/stories/{storyId}/view", h.recordView).Methods(http.MethodPost)
	r.HandleFunc("/stories/{storyId}/react", h.recordReaction).Methods(http.MethodPost)
	r.HandleFunc("/stories/{storyId}/viewers", h.listViewers).Methods(http.MethodGet)
	r.HandleFunc("/quota/me", h.quotaStatus).Methods(http.MethodGet)
	r.HandleFunc("/credits/topup", h.topUpCredits).Methods(http.MethodPost)
	r.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)
	return WrapWithAudit(r, audit)
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if logging.GetRole(r.Context()) != "admin" {
		writeError(w, r, errors.Forbidden("audit log requires the admin role"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []AuditEntry{})
		return
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) createStory(w http.ResponseWriter, r *http.Request) {
	userID := logging.GetUserID(r.Context())
	var payload struct {
		Caption  string `json:"caption"`
		MediaURL string `json:"media_url"`
		Privacy  string `json:"privacy"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, r, errors.InvalidInput("malformed request body"))
		return
	}

	created, charged, err := h.app.Stories.Create(r.Context(), userID, logging.GetTier(r.Context()), story.Content{
		Caption:  payload.Caption,
		MediaURL: payload.MediaURL,
		Privacy:  story.Privacy(payload.Privacy),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Story   story.Story `json:"story"`
		Charged bool        `json:"charged"`
	}{created, charged})
}

func (h *handler) getStory(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Stories.GetVisible(r.Context(), mux.Vars(r)["storyId"], logging.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) deleteStory(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Stories.Delete(r.Context(), mux.Vars(r)["storyId"], logging.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listOwn(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Stories.ListOwn(r.Context(), logging.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) listFollowing(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Stories.ListFromFollowed(r.Context(), logging.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) recordView(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ViewDurationMs int    `json:"view_duration_ms"`
		CompletionRate int    `json:"completion_rate"`
		DeviceType     string `json:"device_type"`
	}
	// The view body is optional metadata.
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, r, errors.InvalidInput("malformed request body"))
			return
		}
	}

	result, err := h.app.Engagement.RecordView(r.Context(), mux.Vars(r)["storyId"], logging.GetUserID(r.Context()), engagement.ViewMeta{
		ViewDurationMs: payload.ViewDurationMs,
		CompletionRate: payload.CompletionRate,
		DeviceType:     payload.DeviceType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := map[string]interface{}{"success": true}
	if result == engagementsvc.ViewDuplicate {
		body["message"] = "Already viewed"
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) recordReaction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reaction string `json:"reaction"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, r, errors.InvalidInput("malformed request body"))
		return
	}

	outcome, err := h.app.Engagement.RecordReaction(r.Context(), mux.Vars(r)["storyId"], logging.GetUserID(r.Context()), engagement.Reaction(payload.Reaction))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success  bool `json:"success"`
		Replaced bool `json:"replaced"`
	}{true, outcome.HadReaction})
}

func (h *handler) listViewers(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Disclosure.ListViewers(r.Context(), mux.Vars(r)["storyId"], logging.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Viewers []engagement.ViewerEntry `json:"viewers"`
		Count   int                      `json:"count"`
	}{entries, len(entries)})
}

func (h *handler) quotaStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := logging.GetUserID(ctx)

	used, err := h.app.Quota.Usage(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.app.Quota.Balance(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	policy := h.app.Quota.Policy(logging.GetTier(ctx))
	writeJSON(w, http.StatusOK, struct {
		PostsUsed     int   `json:"posts_used"`
		Allowance     int   `json:"allowance"`
		AllowOverage  bool  `json:"allow_overage"`
		CreditBalance int64 `json:"credit_balance"`
	}{used, policy.DailyAllowance, policy.AllowOverage, balance})
}

func (h *handler) topUpCredits(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, r, errors.InvalidInput("malformed request body"))
		return
	}

	entry, err := h.app.Quota.TopUp(r.Context(), logging.GetUserID(r.Context()), payload.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("request failed", err)
	}
	httputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}
