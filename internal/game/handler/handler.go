package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/httputil"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/middleware/auth"
	request "github.com/botdiril/botdiril-game-backend/pkg/platform/middleware/request"
)

// Service defines the interface for ledger operations.
type Service interface {
	Balance(ctx context.Context, id domain.Identity) (*models.Player, error)
	Daily(ctx context.Context, id domain.Identity) ([]models.PlayerEvent, error)
	Spend(ctx context.Context, id domain.Identity) ([]models.PlayerEvent, error)
}

// Game error types as they appear on the wire.
const (
	GameErrorNotEnough     = "NotEnough"
	GameErrorIllegalAction = "IllegalAction"
)

// GameError is one rejected game action. Item and Amount are set for
// NotEnough only: the display name of the missing item and how many more
// are needed.
type GameError struct {
	Type   string `json:"type"`
	Item   string `json:"item,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

// GameErrorResponse is the body of a rejected command. Successful commands
// answer with the bare event list instead.
type GameErrorResponse struct {
	Errors []GameError `json:"errors"`
}

// Handler handles the game command endpoints.
type Handler struct {
	logger       *slog.Logger
	game         Service
	authenticate func(auth.HandlerFunc) http.HandlerFunc
}

// New creates a new game Handler. Every route requires a bearer token
// resolved by authenticator.
func New(game Service, authenticator auth.Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		game:         game,
		authenticate: auth.RequireIdentity(authenticator, logger),
	}
}

// Register registers the game routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/balance", h.authenticate(h.handleBalance))
	r.Post("/daily", h.authenticate(h.handleDaily))
	r.Post("/spend", h.authenticate(h.handleSpend))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	player, err := h.game.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, player)
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	h.runCommand(w, r, "daily", id, h.game.Daily)
}

func (h *Handler) handleSpend(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	h.runCommand(w, r, "spend", id, h.game.Spend)
}

func (h *Handler) runCommand(
	w http.ResponseWriter,
	r *http.Request,
	command string,
	id domain.Identity,
	run func(context.Context, domain.Identity) ([]models.PlayerEvent, error),
) {
	events, err := run(r.Context(), id)
	if err != nil {
		h.writeError(w, r, command, err)
		return
	}
	if events == nil {
		events = []models.PlayerEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, command string, err error) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var notEnough *models.NotEnoughError
	if errors.As(err, &notEnough) {
		h.logger.InfoContext(ctx, "command rejected",
			"command", command,
			"currency", notEnough.Currency.String(),
			"shortfall", notEnough.Shortfall,
			"request_id", requestID,
		)
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, GameErrorResponse{
			Errors: []GameError{{
				Type:   GameErrorNotEnough,
				Item:   notEnough.Currency.DisplayName(),
				Amount: notEnough.Shortfall,
			}},
		})
		return
	}
	if errors.Is(err, models.ErrIllegalAction) {
		h.logger.InfoContext(ctx, "command rejected",
			"command", command,
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteJSON(w, http.StatusBadRequest, GameErrorResponse{
			Errors: []GameError{{Type: GameErrorIllegalAction}},
		})
		return
	}

	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "command failed",
			"command", command,
			"error", err,
			"request_id", requestID,
		)
	} else {
		h.logger.WarnContext(ctx, "command not applied",
			"command", command,
			"error", err,
			"request_id", requestID,
		)
	}
	httputil.WriteError(w, err)
}
