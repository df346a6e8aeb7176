package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"flock/internal/exit/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
	request "flock/pkg/platform/middleware/request"
	"flock/pkg/requestcontext"
)

// Service defines the interface for member lifecycle operations.
type Service interface {
	CreateExit(ctx context.Context, req *models.CreateExitRequest) (*models.ExitRecord, error)
	UpdateExit(ctx context.Context, req *models.UpdateExitRequest) (*models.ExitRecord, error)
	GetExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error)
	ListExits(ctx context.Context, churchID id.ChurchID, filter models.ListFilter) (*models.ListResult, error)
	Statistics(ctx context.Context, churchID id.ChurchID) (*models.Statistics, error)
	ReinstateMember(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, reinstatedBy id.UserID) (*models.ExitRecord, error)
	SoftDeleteExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, deletedBy id.UserID) (*models.ExitRecord, error)
	BulkReinstateExits(ctx context.Context, churchID id.ChurchID, exitIDs []id.ExitID, reinstatedBy id.UserID) (*models.BulkResult, error)
	BulkDeleteExits(ctx context.Context, churchID id.ChurchID, exitIDs []id.ExitID, deletedBy id.UserID) (*models.BulkResult, error)
	FindInconsistentExits(ctx context.Context, churchID id.ChurchID) ([]*models.ExitRecord, error)
	FixInconsistentExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, updatedBy id.UserID) (*models.FixResult, error)
	FixAllInconsistentExits(ctx context.Context, churchID id.ChurchID, updatedBy id.UserID) (int, error)
	MemberHistory(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]models.HistoryEvent, error)
}

// Handler serves the exit and member history endpoints. Every route expects
// RequireAuth upstream: the church scope and the actor come from the token.
type Handler struct {
	service Service
	logger  *slog.Logger
	// repairMiddleware guards the fix endpoints when set.
	repairMiddleware func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRepairGuard wraps the inconsistency repair routes, e.g. with a role check.
func WithRepairGuard(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.repairMiddleware = mw
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the exit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/exits", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/statistics", h.handleStatistics)
		r.Get("/inconsistencies", h.handleFindInconsistent)
		r.Post("/bulk-delete", h.handleBulkDelete)
		r.Post("/bulk-reinstate", h.handleBulkReinstate)
		r.Group(func(r chi.Router) {
			if h.repairMiddleware != nil {
				r.Use(h.repairMiddleware)
			}
			r.Post("/inconsistencies/fix-all", h.handleFixAll)
			r.Post("/{id}/fix", h.handleFix)
		})
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/reinstate", h.handleReinstate)
	})
	r.Get("/members/{memberID}/exit-history", h.handleHistory)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, "list exits", err)
		return
	}
	res, err := h.service.ListExits(ctx, requestcontext.ChurchID(ctx), filter)
	if err != nil {
		h.writeError(ctx, w, "list exits", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body createExitBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.writeError(ctx, w, "create exit", err)
		return
	}
	rec, err := h.service.CreateExit(ctx, body.toRequest(requestcontext.ChurchID(ctx), requestcontext.UserID(ctx)))
	if err != nil {
		h.writeError(ctx, w, "create exit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Statistics(ctx, requestcontext.ChurchID(ctx))
	if err != nil {
		h.writeError(ctx, w, "exit statistics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleFindInconsistent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exits, err := h.service.FindInconsistentExits(ctx, requestcontext.ChurchID(ctx))
	if err != nil {
		h.writeError(ctx, w, "find inconsistent exits", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inconsistenciesResponse{Exits: exits, Total: len(exits)})
}

func (h *Handler) handleFixAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fixed, err := h.service.FixAllInconsistentExits(ctx, requestcontext.ChurchID(ctx), requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, "fix all inconsistent exits", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fixAllResponse{Fixed: fixed})
}

func (h *Handler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	h.handleBulk(w, r, "bulk delete exits", h.service.BulkDeleteExits)
}

func (h *Handler) handleBulkReinstate(w http.ResponseWriter, r *http.Request) {
	h.handleBulk(w, r, "bulk reinstate exits", h.service.BulkReinstateExits)
}

type bulkFunc func(ctx context.Context, churchID id.ChurchID, exitIDs []id.ExitID, actor id.UserID) (*models.BulkResult, error)

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request, op string, apply bulkFunc) {
	ctx := r.Context()
	var body bulkBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.writeError(ctx, w, op, err)
		return
	}
	res, err := apply(ctx, requestcontext.ChurchID(ctx), body.IDs, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exitID, err := exitIDParam(r)
	if err != nil {
		h.writeError(ctx, w, "get exit", err)
		return
	}
	rec, err := h.service.GetExit(ctx, requestcontext.ChurchID(ctx), exitID)
	if err != nil {
		h.writeError(ctx, w, "get exit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exitID, err := exitIDParam(r)
	if err != nil {
		h.writeError(ctx, w, "update exit", err)
		return
	}
	var body updateExitBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.writeError(ctx, w, "update exit", err)
		return
	}
	rec, err := h.service.UpdateExit(ctx, body.toRequest(requestcontext.ChurchID(ctx), exitID, requestcontext.UserID(ctx)))
	if err != nil {
		h.writeError(ctx, w, "update exit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "delete exit", h.service.SoftDeleteExit)
}

func (h *Handler) handleReinstate(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "reinstate member", h.service.ReinstateMember)
}

type transitionFunc func(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, actor id.UserID) (*models.ExitRecord, error)

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, op string, apply transitionFunc) {
	ctx := r.Context()
	exitID, err := exitIDParam(r)
	if err != nil {
		h.writeError(ctx, w, op, err)
		return
	}
	rec, err := apply(ctx, requestcontext.ChurchID(ctx), exitID, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleFix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exitID, err := exitIDParam(r)
	if err != nil {
		h.writeError(ctx, w, "fix exit", err)
		return
	}
	res, err := h.service.FixInconsistentExit(ctx, requestcontext.ChurchID(ctx), exitID, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, "fix exit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		h.writeError(ctx, w, "member exit history", dErrors.Wrap(err, dErrors.CodeInvalidPayload, "member id is invalid"))
		return
	}
	events, err := h.service.MemberHistory(ctx, requestcontext.ChurchID(ctx), memberID)
	if err != nil {
		h.writeError(ctx, w, "member exit history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{MemberID: memberID, Events: events})
}

func exitIDParam(r *http.Request) (id.ExitID, error) {
	exitID, err := id.ParseExitID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidPayload, "exit id is invalid")
	}
	return exitID, nil
}

// writeError logs server faults at error level and caller faults at warn.
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
