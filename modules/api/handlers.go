package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/launchpilot/launchpilot/pkg/logger"
	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/mailer"
	"github.com/launchpilot/launchpilot/svc/user"
)

// paddleSignatureHeader is the payment provider's webhook signature header.
const paddleSignatureHeader = "Paddle-Signature"

type handlers struct {
	deps Deps
}

type entitlementResponse struct {
	Tier      billing.Tier      `json:"tier"`
	IsActive  bool              `json:"isActive"`
	IsPaid    bool              `json:"isPaid"`
	Limit     int               `json:"limit"`
	ChatRooms []string          `json:"chatRooms"`
	Features  []billing.Feature `json:"features"`
	CanExport bool              `json:"canExport"`
}

func (h *handlers) entitlement(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ent := h.deps.Resolver.Resolve(r.Context(), userID)
	writeJSON(w, http.StatusOK, entitlementResponse{
		Tier:      ent.Tier,
		IsActive:  ent.IsActive,
		IsPaid:    ent.IsPaid,
		Limit:     ent.Plan.MonthlyQuota,
		ChatRooms: ent.Plan.ChatRooms,
		Features:  ent.Plan.Features,
		CanExport: ent.Plan.HasFeature(billing.FeatureExport),
	})
}

type usageResponse struct {
	Used          int          `json:"used"`
	Limit         int          `json:"limit"`
	Tier          billing.Tier `json:"tier"`
	MonthStart    time.Time    `json:"monthStart"`
	IsFollowupDue bool         `json:"isFollowupDue"`
	FirstEventAt  *time.Time   `json:"firstEventAt,omitempty"`
}

func (h *handlers) usageStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	snap := h.deps.Usage.Stats(r.Context(), userID)
	tier := h.deps.Resolver.Resolve(r.Context(), userID).Tier
	writeJSON(w, http.StatusOK, usageResponse{
		Used:          snap.Used,
		Limit:         snap.Limit,
		Tier:          tier,
		MonthStart:    snap.MonthStart,
		IsFollowupDue: snap.IsFollowupDue,
		FirstEventAt:  snap.FirstEventAt,
	})
}

type recordUsageRequest struct {
	UserID   string `json:"userId"`
	Problem  string `json:"problem"`
	Strategy string `json:"strategy"`
	Tier     string `json:"tier,omitempty"`
}

func (h *handlers) recordUsage(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	// Callers that know the tier (the generation pipeline marking internal
	// test runs) pass it; everyone else gets it resolved.
	tier := billing.Tier(req.Tier)
	if req.Tier == "" {
		tier = h.deps.Resolver.Resolve(r.Context(), req.UserID).Tier
	} else if !tier.Valid() {
		writeError(w, http.StatusBadRequest, "unknown tier")
		return
	}

	used, err := h.deps.Usage.RecordGeneration(r.Context(), req.UserID, tier, req.Problem, req.Strategy)
	if err != nil {
		h.deps.Log.ErrorContext(r.Context(), "failed to record generation",
			logger.UserID(req.UserID), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record generation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"used": used})
}

type receivedResponse struct {
	Received bool `json:"received"`
}

func (h *handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	ev, err := h.deps.Provider.ParseWebhook(r.Context(), payload, r.Header.Get(paddleSignatureHeader))
	if err != nil {
		h.deps.Log.WarnContext(r.Context(), "webhook rejected",
			logger.Error(err))
		writeError(w, http.StatusBadRequest, "webhook verification failed")
		return
	}

	if err := h.deps.Reconciler.Process(r.Context(), ev); err != nil {
		// A 500 tells the provider to redeliver; the idempotency keys make
		// the retry safe.
		h.deps.Log.ErrorContext(r.Context(), "webhook processing failed",
			logger.EventType(string(ev.Type)), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}

func (h *handlers) authWebhook(w http.ResponseWriter, r *http.Request) {
	var ev user.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.deps.Users.HandleEvent(r.Context(), ev); err != nil {
		if errors.Is(err, user.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.deps.Log.ErrorContext(r.Context(), "auth event processing failed",
			logger.EventType(ev.Type), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}

type runDripRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (h *handlers) runDrip(w http.ResponseWriter, r *http.Request) {
	var req runDripRequest
	if r.Body != nil {
		// An empty body means the default limit.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	report, err := h.deps.Drip.RunDue(r.Context(), req.Limit)
	if err != nil {
		h.deps.Log.ErrorContext(r.Context(), "drip sweep failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "drip sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type sendTestMailRequest struct {
	To       string `json:"to"`
	Template string `json:"template"`
	Name     string `json:"name,omitempty"`
	Tier     string `json:"tier,omitempty"`
	Day      int    `json:"day,omitempty"`
}

// sendTestMail renders and dispatches a template directly, bypassing the
// notification ledger so QA can send the same template repeatedly.
func (h *handlers) sendTestMail(w http.ResponseWriter, r *http.Request) {
	var req sendTestMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Template == "" {
		writeError(w, http.StatusBadRequest, "to and template are required")
		return
	}

	tier := billing.Tier(req.Tier)
	if !tier.Valid() {
		tier = billing.TierFree
	}

	msg, err := h.deps.Renderer.Render(req.Template, mailer.RenderContext{
		Name:  req.Name,
		Email: req.To,
		Tier:  tier,
		Day:   req.Day,
	})
	if err != nil {
		if errors.Is(err, mailer.ErrUnknownTemplate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}

	if err := h.deps.Sender.SendEmail(r.Context(), mailer.SendEmailParams{
		SendTo:   req.To,
		Subject:  msg.Subject,
		BodyHTML: msg.HTML,
		BodyText: msg.Text,
		Tag:      "test",
	}); err != nil {
		h.deps.Log.ErrorContext(r.Context(), "test mail failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
