package matchmaker

import (
	"context"
	"net/http"

	"Scoreboard/internal/apperr"

	"github.com/gin-gonic/gin"
)

// MatchCanceller withdraws from or mutually cancels a live match.
type MatchCanceller interface {
	Cancel(ctx context.Context, userID, matchID string) error
}

type Handler struct {
	svc     *Service
	matches MatchCanceller
}

func NewHandler(svc *Service, matches MatchCanceller) *Handler {
	return &Handler{svc: svc, matches: matches}
}

// POST /match/join  body: {gameType}
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.UserID = c.GetString("userId")
	if req.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	p, queued, err := h.svc.Join(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	if queued {
		c.JSON(http.StatusOK, JoinResponse{Queued: true, GameType: req.GameType})
		return
	}
	c.JSON(http.StatusOK, JoinResponse{
		Queued: false, GameType: p.GameType, MatchID: p.MatchID, Players: p.Players,
	})
}

// POST /match/cancel body: {matchId?}
func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.GetString("userId")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), userID); err != nil {
		writeError(c, err)
		return
	}
	if req.MatchID != "" && h.matches != nil {
		if err := h.matches.Cancel(c.Request.Context(), userID, req.MatchID); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func writeError(c *gin.Context, err error) {
	code, msg := apperr.CodeOf(err)
	c.JSON(httpStatus(code), gin.H{"error": msg, "code": code})
}

func httpStatus(code string) int {
	switch code {
	case apperr.CodeMalformed, apperr.CodeUnknownGame, apperr.CodeUnknownType:
		return http.StatusBadRequest
	case apperr.CodeNotParticipant, apperr.CodeIdentity:
		return http.StatusForbidden
	case apperr.CodeMatchNotFound:
		return http.StatusNotFound
	case apperr.CodeBusy, apperr.CodeWrongStatus, apperr.CodeWrongTurn:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
