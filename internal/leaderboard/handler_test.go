package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"Scoreboard/internal/game/rules"
	"Scoreboard/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{}

func (failing) Leaderboard(context.Context, string, int) ([]storage.LeaderboardEntry, error) {
	return nil, errors.New("db down")
}

func serve(store Reader, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(store, rules.Default())
	r.GET("/leaderboard/:gameType", h.Get)
	r.GET("/games", h.Games)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLeaderboardOrder(t *testing.T) {
	gw := storage.NewMemoryGateway()
	gw.Seed(storage.RatingRecord{UserID: "alice", GameType: "chess", Rating: 1216, Wins: 1})
	gw.Seed(storage.RatingRecord{UserID: "bob", GameType: "chess", Rating: 1184, Losses: 1})
	gw.Seed(storage.RatingRecord{UserID: "carol", GameType: "chess", Rating: 1300, Wins: 4})
	gw.Seed(storage.RatingRecord{UserID: "dave", GameType: "foosball", Rating: 1500})

	w := serve(gw, "/leaderboard/chess")
	require.Equal(t, http.StatusOK, w.Code)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chess", resp.GameType)
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, "carol", resp.Entries[0].UserID)
	assert.Equal(t, 1, resp.Entries[0].Rank)
	assert.Equal(t, "alice", resp.Entries[1].UserID)
	assert.Equal(t, "bob", resp.Entries[2].UserID)
	assert.Equal(t, 1, resp.Entries[2].Losses)

	w = serve(gw, "/leaderboard/chess?limit=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 1)
}

func TestLeaderboardEmpty(t *testing.T) {
	w := serve(storage.NewMemoryGateway(), "/leaderboard/foosball")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"gameType":"foosball","entries":[]}`, w.Body.String())
}

func TestLeaderboardErrors(t *testing.T) {
	gw := storage.NewMemoryGateway()
	assert.Equal(t, http.StatusNotFound, serve(gw, "/leaderboard/poker").Code)
	assert.Equal(t, http.StatusBadRequest, serve(gw, "/leaderboard/chess?limit=x").Code)
	assert.Equal(t, http.StatusBadRequest, serve(gw, "/leaderboard/chess?limit=0").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(failing{}, "/leaderboard/chess").Code)
}

func TestGamesListsRegistry(t *testing.T) {
	w := serve(storage.NewMemoryGateway(), "/games")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Games []string `json:"games"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, rules.Default().Names(), resp.Games)
	assert.Contains(t, resp.Games, "chess")
	assert.Contains(t, resp.Games, "foosball")
}

func TestGamesWithoutCatalog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(storage.NewMemoryGateway(), nil)
	r.GET("/games", h.Games)
	r.GET("/leaderboard/:gameType", h.Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/games", nil))
	assert.JSONEq(t, `{"games":[]}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard/anything", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
