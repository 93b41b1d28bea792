// Package leaderboard serves the read-only rankings kept by the persistence
// gateway.
package leaderboard

import (
	"context"
	"net/http"
	"slices"
	"strconv"

	"Scoreboard/internal/storage"
	"Scoreboard/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type Reader interface {
	Leaderboard(ctx context.Context, gameType string, limit int) ([]storage.LeaderboardEntry, error)
}

// Catalog lists the game types the server plays.
type Catalog interface {
	Names() []string
}

type Handler struct {
	store Reader
	games Catalog
}

// NewHandler serves rankings from store. A nil games accepts any game type.
func NewHandler(store Reader, games Catalog) *Handler {
	return &Handler{store: store, games: games}
}

func (h *Handler) known(gameType string) bool {
	if h.games == nil {
		return true
	}
	return slices.Contains(h.games.Names(), gameType)
}

type response struct {
	GameType string                     `json:"gameType"`
	Entries  []storage.LeaderboardEntry `json:"entries"`
}

// GET /leaderboard/:gameType?limit=N
func (h *Handler) Get(c *gin.Context) {
	gameType := c.Param("gameType")
	if !h.known(gameType) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown game type"})
		return
	}

	limit := defaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	entries, err := h.store.Leaderboard(c.Request.Context(), gameType, limit)
	if err != nil {
		utils.Log.Error("leaderboard query failed", "game", gameType, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "leaderboard unavailable"})
		return
	}
	if entries == nil {
		entries = []storage.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, response{GameType: gameType, Entries: entries})
}

// GET /games
func (h *Handler) Games(c *gin.Context) {
	names := []string{}
	if h.games != nil {
		names = append(names, h.games.Names()...)
	}
	c.JSON(http.StatusOK, gin.H{"games": names})
}
