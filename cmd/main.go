package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Scoreboard/config"
	"Scoreboard/internal/game/manager"
	"Scoreboard/internal/game/rules"
	"Scoreboard/internal/leaderboard"
	"Scoreboard/internal/matchmaker"
	"Scoreboard/internal/middleware"
	"Scoreboard/internal/rating"
	"Scoreboard/internal/router"
	"Scoreboard/internal/storage"
	"Scoreboard/internal/utils"
	"Scoreboard/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	config.Load()
	utils.Init(config.C.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//-------------------------------------------------------
	// 1. Redis + Postgres
	//-------------------------------------------------------
	if err := storage.InitRedis(
		config.C.Redis.Addr,
		config.C.Redis.Password,
		config.C.Redis.DB,
	); err != nil {
		utils.Log.Fatal("redis init failed", "err", err)
	}
	defer storage.Close()

	var gw storage.Gateway
	if dsn := config.C.Database.DSN; dsn != "" {
		if err := storage.InitPostgres(dsn); err != nil {
			utils.Log.Fatal("postgres init failed", "err", err)
		}
		if err := storage.Migrate(storage.DB); err != nil {
			utils.Log.Fatal("migration failed", "err", err)
		}
		gw = storage.NewPostgresGateway(storage.DB)
	} else {
		utils.Log.Warn("database.dsn is empty, results are kept in memory")
		gw = storage.NewMemoryGateway()
	}

	//-------------------------------------------------------
	// 2. Rating engine
	//-------------------------------------------------------
	engine := rating.NewEngine(gw,
		rating.NewRedisOutbox(storage.Rdb),
		rating.NewRedisAlerter(storage.Rdb),
		rating.Config{
			K:             config.C.Rating.KFactor,
			DefaultRating: config.C.Rating.DefaultRating,
			Workers:       config.C.Rating.Workers,
			MaxRetries:    config.C.Rating.MaxRetries,
			RetryInitial:  config.C.Rating.RetryInitial,
			RetryMax:      config.C.Rating.RetryMax,
		})
	engine.Start(ctx)
	if n, err := engine.Recover(ctx); err != nil {
		utils.Log.Error("outbox recovery failed", "err", err)
	} else if n > 0 {
		utils.Log.Info("outbox recovered", "results", n)
	}
	go retryFailed(ctx, engine, time.Minute)

	//-------------------------------------------------------
	// 3. Hub, matches, router
	//-------------------------------------------------------
	hub := websocket.NewHub(config.C.Match.QueueSize, config.C.Match.HeartbeatTimeout)
	reg := rules.Default()
	gameMgr := manager.NewGameManager(hub, reg, engine, manager.Options{
		PairingGrace:    config.C.Match.PairingGrace,
		DisconnectGrace: config.C.Match.DisconnectGrace,
	})

	repo := matchmaker.NewRedisRepo(storage.Rdb)
	svc := matchmaker.NewService(repo, config.C.Match.PlayerTTL,
		func(ctx context.Context, a, b, gameType string) (string, error) {
			st, err := gameMgr.CreatePaired(ctx, a, b, gameType)
			return st.MatchID, err
		})
	svc.Live = func(matchID string) bool {
		_, ok := gameMgr.Snapshot(matchID)
		return ok
	}

	rt := router.New(hub, gameMgr, svc)
	hub.OnConnect = gameMgr.Connected
	hub.OnDisconnect = func(userID string) {
		gameMgr.Disconnected(userID)
		if err := svc.Cancel(context.Background(), userID); err != nil {
			utils.Log.Warn("pool cleanup failed", "user", userID, "err", err)
		}
	}
	hub.OnIncoming = rt.Handle
	go hub.Run(ctx)

	//-------------------------------------------------------
	// 4. Gin + CORS
	//-------------------------------------------------------
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Count(), "matches": gameMgr.Count()})
	})

	lb := leaderboard.NewHandler(gw, reg)
	r.GET("/games", lb.Games)
	r.GET("/leaderboard/:gameType", lb.Get)

	secret := []byte(config.C.JWT.Secret)
	auth := r.Group("/", middleware.JwtAuthMiddleware(secret))
	{
		auth.GET("/ws", websocket.ServeWS(hub))
		auth.DELETE("/ws", websocket.Disconnect(hub))

		mh := matchmaker.NewHandler(svc, gameMgr)
		auth.POST("/match/join", mh.Join)
		auth.POST("/match/cancel", mh.Cancel)
	}

	//-------------------------------------------------------
	// 5. Serve until signalled
	//-------------------------------------------------------
	srv := &http.Server{Addr: config.C.Server.Port, Handler: r}
	go func() {
		utils.Log.Info("server running", "addr", config.C.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Log.Fatal("listen failed", "err", err)
		}
	}()

	<-ctx.Done()
	utils.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Log.Error("http shutdown", "err", err)
	}
	hub.Close()
	// live matches stay unrated; their results were never produced
	gameMgr.Shutdown()
	engine.Stop()
}

func retryFailed(ctx context.Context, engine *rating.Engine, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := engine.RetryFailed(ctx); n > 0 {
				utils.Log.Info("failed results committed", "count", n)
			}
		}
	}
}
