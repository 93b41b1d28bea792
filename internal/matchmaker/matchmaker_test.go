package matchmaker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"Scoreboard/internal/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairRecorder stands in for the match manager.
type pairRecorder struct {
	mu    sync.Mutex
	pairs [][2]string
	err   error
}

func (p *pairRecorder) open(_ context.Context, a, b, gameType string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.pairs = append(p.pairs, [2]string{a, b})
	return uuid.NewString(), nil
}

func (p *pairRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pairs)
}

func newRedisRepo(t *testing.T) (*miniredis.Miniredis, Repo) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisRepo(rdb)
}

// ---------- memory ----------
func Test_MemoryRepo_MatchFlow(t *testing.T) {
	rec := &pairRecorder{}
	svc := NewService(NewMemoryRepo(), 60, rec.open)
	ctx := context.Background()

	_, queued, err := svc.Join(ctx, JoinRequest{UserID: "alice", GameType: "chess"})
	require.NoError(t, err)
	assert.True(t, queued)

	// other game types have their own pool
	_, queued, err = svc.Join(ctx, JoinRequest{UserID: "carol", GameType: "foosball"})
	require.NoError(t, err)
	assert.True(t, queued)

	p, queued, err := svc.Join(ctx, JoinRequest{UserID: "bob", GameType: "chess"})
	require.NoError(t, err)
	assert.False(t, queued)
	require.NotNil(t, p)
	assert.NotEmpty(t, p.MatchID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, p.Players)
	assert.Equal(t, 1, rec.count())

	n, _ := svc.repo.Count(ctx, "foosball")
	assert.Equal(t, int64(1), n)
}

func Test_MemoryRepo_InvalidJoin(t *testing.T) {
	svc := NewService(NewMemoryRepo(), 60, nil)
	_, _, err := svc.Join(context.Background(), JoinRequest{UserID: "alice"})
	code, _ := apperr.CodeOf(err)
	assert.Equal(t, apperr.CodeMalformed, code)
}

func Test_PairFailureRequeues(t *testing.T) {
	rec := &pairRecorder{err: apperr.Illegal(apperr.CodeBusy, "busy")}
	repo := NewMemoryRepo()
	svc := NewService(repo, 60, rec.open)
	ctx := context.Background()

	_, _, err := svc.Join(ctx, JoinRequest{UserID: "alice", GameType: "chess"})
	require.NoError(t, err)
	_, _, err = svc.Join(ctx, JoinRequest{UserID: "bob", GameType: "chess"})
	require.Error(t, err)

	n, _ := repo.Count(ctx, "chess")
	assert.Equal(t, int64(2), n, "both players are back in the pool")
}

// ---------- Redis (miniredis) ----------
func Test_RedisRepo_MatchFlow(t *testing.T) {
	mr, repo := newRedisRepo(t)
	rec := &pairRecorder{}
	svc := NewService(repo, 60, rec.open)
	ctx := context.Background()

	_, queued, err := svc.Join(ctx, JoinRequest{UserID: "alice", GameType: "chess"})
	require.NoError(t, err)
	assert.True(t, queued)

	p, queued, err := svc.Join(ctx, JoinRequest{UserID: "bob", GameType: "chess"})
	require.NoError(t, err)
	assert.False(t, queued)
	require.NotNil(t, p)

	assert.True(t, mr.Exists("mm:match:"+p.MatchID), "pairing should be saved")
	val, err := mr.Get("mm:playerMatch:chess:alice")
	require.NoError(t, err)
	assert.Equal(t, p.MatchID, val)
	assert.False(t, mr.Exists("mm:player:alice"))

	// carol joins then leaves; dave waits alone
	_, _, err = svc.Join(ctx, JoinRequest{UserID: "carol", GameType: "chess"})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, "carol"))
	_, queued, err = svc.Join(ctx, JoinRequest{UserID: "dave", GameType: "chess"})
	require.NoError(t, err)
	assert.True(t, queued)

	p2, queued, err := svc.Join(ctx, JoinRequest{UserID: "carol", GameType: "chess"})
	require.NoError(t, err)
	assert.False(t, queued)
	assert.ElementsMatch(t, []string{"carol", "dave"}, p2.Players)

	cnt, err := repo.Count(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cnt)
}

func Test_ConcurrentJoins(t *testing.T) {
	_, redisRepo := newRedisRepo(t)
	repos := map[string]Repo{"memory": NewMemoryRepo(), "redis": redisRepo}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			rec := &pairRecorder{}
			svc := NewService(repo, 60, rec.open)

			var wg sync.WaitGroup
			for i := 0; i < 6; i++ {
				wg.Add(1)
				go func(u string) {
					defer wg.Done()
					_, _, _ = svc.Join(context.Background(), JoinRequest{UserID: u, GameType: "chess"})
				}(fmt.Sprintf("p%d", i))
			}
			wg.Wait()

			cnt, err := repo.Count(context.Background(), "chess")
			require.NoError(t, err)
			assert.Equal(t, int64(0), cnt)
			assert.Equal(t, 3, rec.count())

			seen := map[string]bool{}
			for _, pr := range rec.pairs {
				for _, u := range pr {
					assert.False(t, seen[u], "player %s paired twice", u)
					seen[u] = true
				}
			}
		})
	}
}

func Test_RedisRepo_QueueLifecycle(t *testing.T) {
	mr, repo := newRedisRepo(t)
	ctx := context.Background()
	key := poolKey("chess")

	require.NoError(t, repo.Enqueue(ctx, "chess", "p1", 60))
	assert.True(t, mr.Exists(key), "pool should exist after first enqueue")
	gameType, _ := mr.Get(playerKey("p1"))
	assert.Equal(t, "chess", gameType)

	// a lone player is never popped
	got, err := repo.PopPair(ctx, "chess")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, mr.Exists(key))

	require.NoError(t, repo.Enqueue(ctx, "chess", "p2", 60))
	got, err = repo.PopPair(ctx, "chess")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, got)
	assert.False(t, mr.Exists(key), "pool key should be gone once empty")

	require.NoError(t, repo.Enqueue(ctx, "chess", "p3", 60))
	require.NoError(t, repo.Remove(ctx, "p3"))
	assert.False(t, mr.Exists(key), "pool key should be removed when empty after cancel")
	assert.False(t, mr.Exists(playerKey("p3")))

	// unknown players are a no-op
	assert.NoError(t, repo.Remove(ctx, "nobody"))

	require.NoError(t, repo.Enqueue(ctx, "chess", "p1", 1))
	mr.FastForward(2 * time.Second)
	assert.False(t, mr.Exists(playerKey("p1")))
	assert.True(t, mr.Exists(key), "the pool set does not expire with the player key")
}

func Test_PlayerCannotRejoin_WhileMatchLive(t *testing.T) {
	_, repo := newRedisRepo(t)
	rec := &pairRecorder{}
	svc := NewService(repo, 60, rec.open)
	ctx := context.Background()

	live := map[string]bool{}
	var mu sync.Mutex
	svc.Live = func(id string) bool {
		mu.Lock()
		defer mu.Unlock()
		return live[id]
	}

	_, _, err := svc.Join(ctx, JoinRequest{UserID: "alice", GameType: "chess"})
	require.NoError(t, err)
	p, _, err := svc.Join(ctx, JoinRequest{UserID: "bob", GameType: "chess"})
	require.NoError(t, err)
	mu.Lock()
	live[p.MatchID] = true
	mu.Unlock()

	_, _, err = svc.Join(ctx, JoinRequest{UserID: "alice", GameType: "chess"})
	code, _ := apperr.CodeOf(err)
	assert.Equal(t, apperr.CodeBusy, code)

	// a different game type is fine
	_, queued, err := svc.Join(ctx, JoinRequest{UserID: "alice", GameType: "foosball"})
	require.NoError(t, err)
	assert.True(t, queued)

	mu.Lock()
	live[p.MatchID] = false
	mu.Unlock()
	_, queued, err = svc.Join(ctx, JoinRequest{UserID: "alice", GameType: "chess"})
	require.NoError(t, err)
	assert.True(t, queued, "player should rejoin once the match ended")
}

// ---------- HTTP ----------
type fakeCanceller struct {
	calls []string
	err   error
}

func (f *fakeCanceller) Cancel(_ context.Context, userID, matchID string) error {
	f.calls = append(f.calls, userID+"/"+matchID)
	return f.err
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-User"); u != "" {
			c.Set("userId", u)
		}
	})
	r.POST("/match/join", h.Join)
	r.POST("/match/cancel", h.Cancel)
	return r
}

func post(r http.Handler, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerJoin(t *testing.T) {
	rec := &pairRecorder{}
	r := newRouter(NewHandler(NewService(NewMemoryRepo(), 60, rec.open), nil))

	w := post(r, "/match/join", "alice", `{"gameType":"chess"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp JoinResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Queued)

	w = post(r, "/match/join", "bob", `{"gameType":"chess"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Queued)
	assert.NotEmpty(t, resp.MatchID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, resp.Players)

	assert.Equal(t, http.StatusBadRequest, post(r, "/match/join", "carol", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, "/match/join", "carol", `{"gameType":"che ss"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(r, "/match/join", "", `{"gameType":"chess"}`).Code)
}

func TestHandlerJoinPairFailure(t *testing.T) {
	rec := &pairRecorder{err: apperr.Illegal(apperr.CodeBusy, "already playing")}
	r := newRouter(NewHandler(NewService(NewMemoryRepo(), 60, rec.open), nil))

	post(r, "/match/join", "alice", `{"gameType":"chess"}`)
	w := post(r, "/match/join", "bob", `{"gameType":"chess"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperr.CodeBusy)

	rec.err = errors.New("boom")
	w = post(r, "/match/join", "carol", `{"gameType":"chess"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandlerCancel(t *testing.T) {
	repo := NewMemoryRepo()
	cancels := &fakeCanceller{}
	r := newRouter(NewHandler(NewService(repo, 60, nil), cancels))
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "chess", "alice", 60))
	w := post(r, "/match/cancel", "alice", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	n, _ := repo.Count(ctx, "chess")
	assert.Equal(t, int64(0), n)
	assert.Empty(t, cancels.calls)

	w = post(r, "/match/cancel", "alice", `{"matchId":"m1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"alice/m1"}, cancels.calls)

	cancels.err = apperr.Illegal(apperr.CodeMatchNotFound, "no live match")
	w = post(r, "/match/cancel", "alice", `{"matchId":"m2"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusUnauthorized, post(r, "/match/cancel", "", `{}`).Code)
}
