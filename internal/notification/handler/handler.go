package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"flock/internal/notification/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
	request "flock/pkg/platform/middleware/request"
	"flock/pkg/requestcontext"
)

// Service defines the interface for notification operations.
type Service interface {
	Create(ctx context.Context, req *models.CreateRequest, opts models.CreateOptions) (*models.Notification, error)
	List(ctx context.Context, churchID id.ChurchID, userID id.UserID, filter models.ListFilter) (*models.ListResult, error)
	Get(ctx context.Context, churchID id.ChurchID, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error)
	MarkRead(ctx context.Context, churchID id.ChurchID, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, churchID id.ChurchID, userID id.UserID) ([]id.NotificationID, error)
	Delete(ctx context.Context, churchID id.ChurchID, userID id.UserID, notificationID id.NotificationID) error
	GetPreference(ctx context.Context, churchID id.ChurchID, userID id.UserID) (*models.Preference, error)
	UpdatePreference(ctx context.Context, churchID id.ChurchID, userID id.UserID, channels map[models.Channel]bool) (*models.Preference, error)
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	forceRoles []string
}

type Option func(*Handler)

// WithForceRoles lists the roles allowed to bypass rate limiting with
// "force". Without it no caller may force.
func WithForceRoles(roles ...string) Option {
	return func(h *Handler) {
		h.forceRoles = append(h.forceRoles, roles...)
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the notification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Post("/read-all", h.handleMarkAllRead)
		r.Get("/preferences", h.handleGetPreference)
		r.Put("/preferences", h.handleUpdatePreference)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/read", h.handleMarkRead)
		r.Delete("/{id}", h.handleDelete)
	})
}

type createBody struct {
	models.CreateRequest
	Force bool `json:"force"`
}

type preferenceBody struct {
	Channels map[models.Channel]bool `json:"channels"`
}

type markAllReadResponse struct {
	IDs []id.NotificationID `json:"ids"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body createBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.writeError(ctx, w, "create notification", err)
		return
	}
	if body.Force && !slices.Contains(h.forceRoles, requestcontext.Role(ctx)) {
		h.writeError(ctx, w, "create notification", dErrors.New(dErrors.CodeForbidden, "role may not force a notification"))
		return
	}
	req := body.CreateRequest
	req.ChurchID = requestcontext.ChurchID(ctx)
	n, err := h.service.Create(ctx, &req, models.CreateOptions{Force: body.Force})
	if err != nil {
		h.writeError(ctx, w, "create notification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, n)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(ctx, w, "list notifications", err)
		return
	}
	res, err := h.service.List(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx), filter)
	if err != nil {
		h.writeError(ctx, w, "list notifications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, err := notificationIDParam(r)
	if err != nil {
		h.writeError(ctx, w, "get notification", err)
		return
	}
	n, err := h.service.Get(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx), notificationID)
	if err != nil {
		h.writeError(ctx, w, "get notification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, err := notificationIDParam(r)
	if err != nil {
		h.writeError(ctx, w, "mark notification read", err)
		return
	}
	n, err := h.service.MarkRead(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx), notificationID)
	if err != nil {
		h.writeError(ctx, w, "mark notification read", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := h.service.MarkAllRead(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, "mark all notifications read", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, markAllReadResponse{IDs: ids})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, err := notificationIDParam(r)
	if err != nil {
		h.writeError(ctx, w, "delete notification", err)
		return
	}
	if err := h.service.Delete(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx), notificationID); err != nil {
		h.writeError(ctx, w, "delete notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pref, err := h.service.GetPreference(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, "get notification preference", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pref)
}

func (h *Handler) handleUpdatePreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body preferenceBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.writeError(ctx, w, "update notification preference", err)
		return
	}
	pref, err := h.service.UpdatePreference(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx), body.Channels)
	if err != nil {
		h.writeError(ctx, w, "update notification preference", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pref)
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	filter := models.ListFilter{Search: q.Get("search")}
	if v := q.Get("read"); v != "" {
		read, err := strconv.ParseBool(v)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeInvalidPayload, "read must be a boolean")
		}
		filter.Read = &read
	}
	for name, dst := range map[string]*int{"page": &filter.Page, "limit": &filter.Limit} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, dErrors.New(dErrors.CodeInvalidPayload, name+" must be a non-negative integer")
		}
		*dst = n
	}
	return filter, nil
}

func notificationIDParam(r *http.Request) (id.NotificationID, error) {
	notificationID, err := id.ParseNotificationID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidPayload, "notification id is invalid")
	}
	return notificationID, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
