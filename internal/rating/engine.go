package rating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"Scoreboard/internal/apperr"
	"Scoreboard/internal/storage"
	"Scoreboard/internal/utils"

	"github.com/cenkalti/backoff/v4"
)

var ErrClosed = errors.New("rating engine stopped")

// MatchResult is what a finished match hands to the engine. WinnerID is
// empty for draws. Cancelled matches are recorded but never rated. Updates
// is filled once the new ratings are computed; a result replayed from the
// outbox commits those values instead of computing again.
type MatchResult struct {
	MatchID      string          `json:"matchId"`
	GameType     string          `json:"gameType"`
	PlayerA      string          `json:"playerA"`
	PlayerB      string          `json:"playerB"`
	WinnerID     string          `json:"winnerId,omitempty"`
	Status       string          `json:"status"`
	Reason       string          `json:"reason"`
	FinalPayload json.RawMessage `json:"finalPayload,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	EndedAt      time.Time       `json:"endedAt"`

	Updates []storage.RatingUpdate `json:"updates,omitempty"`
}

func (r MatchResult) Rated() bool { return r.Status == "completed" }

type Config struct {
	K             float64
	DefaultRating int
	Workers       int
	QueueSize     int
	MaxRetries    uint64
	RetryInitial  time.Duration
	RetryMax      time.Duration
}

func (c *Config) fill() {
	if c.K <= 0 {
		c.K = DefaultK
	}
	if c.DefaultRating <= 0 {
		c.DefaultRating = DefaultRating
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 200 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 10 * time.Second
	}
}

// pending is a result whose writes are not all committed yet.
type pending struct {
	res       MatchResult
	computed  bool
	matchDone bool
	updates   []storage.RatingUpdate
}

type Engine struct {
	gw     storage.Gateway
	outbox Outbox
	alerts Alerter
	cfg    Config
	locks  *keyedLocks

	cacheMu sync.RWMutex
	cache   map[string]storage.RatingRecord

	queue chan MatchResult
	quit  chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
	failed   map[string]*pending
	retryMu  sync.Mutex

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine wires the engine to its gateway. A nil outbox keeps results in
// memory only; a nil alerter only logs.
func NewEngine(gw storage.Gateway, outbox Outbox, alerts Alerter, cfg Config) *Engine {
	cfg.fill()
	if outbox == nil {
		outbox = NewMemoryOutbox()
	}
	if alerts == nil {
		alerts = logAlerter{}
	}
	return &Engine{
		gw:       gw,
		outbox:   outbox,
		alerts:   alerts,
		cfg:      cfg,
		locks:    newKeyedLocks(),
		cache:    make(map[string]storage.RatingRecord),
		queue:    make(chan MatchResult, cfg.QueueSize),
		quit:     make(chan struct{}),
		inflight: make(map[string]struct{}),
		failed:   make(map[string]*pending),
	}
}

// Start launches the commit workers.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	utils.Log.Info("rating engine started", "workers", e.cfg.Workers, "k", e.cfg.K)
}

// Stop halts the workers. Results still queued stay in the outbox.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
		if e.cancel != nil {
			e.cancel()
		}
	})
	e.wg.Wait()
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case res := <-e.queue:
			_ = e.Process(ctx, res)
		}
	}
}

// Submit durably queues res. A result already being processed is ignored.
func (e *Engine) Submit(ctx context.Context, res MatchResult) error {
	if !e.claim(res.MatchID) {
		return nil
	}
	var putErr error
	err := e.retry(ctx, func() error { return e.outbox.Put(ctx, res) })
	if err != nil {
		// still processed from memory; only a crash now loses it
		e.alerts.Alert(context.WithoutCancel(ctx), alertFor(res, "outbox", err))
		putErr = apperr.Persistence("queue match result", err)
	}
	if err := e.enqueue(ctx, res); err != nil {
		return err
	}
	return putErr
}

func (e *Engine) enqueue(ctx context.Context, res MatchResult) error {
	select {
	case <-e.quit:
		e.release(res.MatchID)
		return ErrClosed
	default:
	}
	select {
	case e.queue <- res:
		return nil
	case <-e.quit:
		e.release(res.MatchID)
		return ErrClosed
	case <-ctx.Done():
		e.release(res.MatchID)
		return ctx.Err()
	}
}

// Recover queues every result left in the outbox by a previous run.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	results, err := e.outbox.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}
	n := 0
	for _, res := range results {
		if !e.claim(res.MatchID) {
			continue
		}
		if err := e.enqueue(ctx, res); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		utils.Log.Info("recovered match results", "count", n)
	}
	return n, nil
}

func (e *Engine) claim(matchID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[matchID]; ok {
		return false
	}
	e.inflight[matchID] = struct{}{}
	return true
}

func (e *Engine) release(matchID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, matchID)
}

// Process computes and commits one result synchronously. Workers call it for
// every submitted result.
func (e *Engine) Process(ctx context.Context, res MatchResult) error {
	p := &pending{res: res}
	if !res.Rated() {
		return e.finish(ctx, p)
	}
	unlock := e.locks.lock(cacheKey(res.PlayerA, res.GameType), cacheKey(res.PlayerB, res.GameType))
	defer unlock()
	if len(res.Updates) > 0 {
		p.computed = true
		p.updates = append([]storage.RatingUpdate(nil), res.Updates...)
		for _, u := range res.Updates {
			e.cachePut(u.Record)
		}
		return e.finish(ctx, p)
	}
	return e.computeAndFinish(ctx, p)
}

func (e *Engine) computeAndFinish(ctx context.Context, p *pending) error {
	ups, err := e.compute(ctx, p.res)
	if err != nil {
		e.fail(ctx, p, "load", err)
		return apperr.Persistence("load ratings", err)
	}
	p.res.Updates = ups
	p.updates = append([]storage.RatingUpdate(nil), ups...)
	p.computed = true
	for _, u := range ups {
		e.cachePut(u.Record)
	}
	// the computed values must survive a restart, or a replay would rate the
	// match again against standings that already include it
	if err := e.retry(ctx, func() error { return e.outbox.Put(ctx, p.res) }); err != nil {
		e.alerts.Alert(context.WithoutCancel(ctx), alertFor(p.res, "outbox", err))
	}
	return e.finish(ctx, p)
}

func (e *Engine) finish(ctx context.Context, p *pending) error {
	if err := e.commit(ctx, p); err != nil {
		return err
	}
	if err := e.outbox.Delete(ctx, p.res.MatchID); err != nil {
		utils.Log.Warn("outbox delete failed", "match", p.res.MatchID, "err", err)
	}
	e.mu.Lock()
	delete(e.failed, p.res.MatchID)
	delete(e.inflight, p.res.MatchID)
	e.mu.Unlock()
	utils.Log.Info("match committed", "match", p.res.MatchID, "status", p.res.Status, "winner", p.res.WinnerID)
	return nil
}

func (e *Engine) commit(ctx context.Context, p *pending) error {
	if !p.matchDone {
		rec := recordOf(p.res)
		if err := e.retry(ctx, func() error { return e.gw.CommitMatchResult(ctx, rec) }); err != nil {
			e.fail(ctx, p, "match", err)
			return apperr.Persistence("commit match result", err)
		}
		p.matchDone = true
	}
	for len(p.updates) > 0 {
		u := p.updates[0]
		if err := e.retry(ctx, func() error { return e.gw.CommitRatingUpdate(ctx, u) }); err != nil {
			e.fail(ctx, p, "rating", err)
			return apperr.Persistence("commit rating update", err)
		}
		p.updates = p.updates[1:]
	}
	return nil
}

// compute derives both rating updates from the cached standings.
func (e *Engine) compute(ctx context.Context, res MatchResult) ([]storage.RatingUpdate, error) {
	var actualA float64
	outA, outB := storage.OutcomeDraw, storage.OutcomeDraw
	switch res.WinnerID {
	case res.PlayerA:
		actualA, outA, outB = 1, storage.OutcomeWin, storage.OutcomeLoss
	case res.PlayerB:
		actualA, outA, outB = 0, storage.OutcomeLoss, storage.OutcomeWin
	case "":
		actualA = 0.5
	default:
		return nil, fmt.Errorf("winner %q is not a participant of %s", res.WinnerID, res.MatchID)
	}

	ra, err := e.load(ctx, res.PlayerA, res.GameType)
	if err != nil {
		return nil, err
	}
	rb, err := e.load(ctx, res.PlayerB, res.GameType)
	if err != nil {
		return nil, err
	}
	na, nb := Compute(ra.Rating, rb.Rating, actualA, e.cfg.K)

	return []storage.RatingUpdate{
		next(res, ra, na, outA),
		next(res, rb, nb, outB),
	}, nil
}

func next(res MatchResult, cur storage.RatingRecord, rating int, out storage.Outcome) storage.RatingUpdate {
	rec := cur
	rec.Rating = rating
	rec.Played = cur.Played + 1
	if res.EndedAt.After(rec.LastPlayedAt) {
		rec.LastPlayedAt = res.EndedAt
	}
	switch out {
	case storage.OutcomeWin:
		rec.Wins++
	case storage.OutcomeLoss:
		rec.Losses++
	}
	return storage.RatingUpdate{MatchID: res.MatchID, OldRating: cur.Rating, Outcome: out, Record: rec}
}

// Rating returns the current standing of userID, seeding the cache from the
// gateway on first use.
func (e *Engine) Rating(ctx context.Context, userID, gameType string) (storage.RatingRecord, error) {
	return e.load(ctx, userID, gameType)
}

func (e *Engine) load(ctx context.Context, userID, gameType string) (storage.RatingRecord, error) {
	k := cacheKey(userID, gameType)
	e.cacheMu.RLock()
	rec, ok := e.cache[k]
	e.cacheMu.RUnlock()
	if ok {
		return rec, nil
	}

	var found bool
	err := e.retry(ctx, func() error {
		var err error
		rec, found, err = e.gw.GetRating(ctx, userID, gameType)
		return err
	})
	if err != nil {
		return storage.RatingRecord{}, err
	}
	if !found {
		rec = storage.RatingRecord{UserID: userID, GameType: gameType, Rating: e.cfg.DefaultRating}
	}
	e.cachePut(rec)
	return rec, nil
}

// cachePut never replaces a standing with an older one.
func (e *Engine) cachePut(rec storage.RatingRecord) {
	k := cacheKey(rec.UserID, rec.GameType)
	e.cacheMu.Lock()
	if cur, ok := e.cache[k]; !ok || cur.Played <= rec.Played {
		e.cache[k] = rec
	}
	e.cacheMu.Unlock()
}

func (e *Engine) fail(ctx context.Context, p *pending, stage string, err error) {
	e.mu.Lock()
	e.failed[p.res.MatchID] = p
	e.mu.Unlock()
	e.alerts.Alert(context.WithoutCancel(ctx), alertFor(p.res, stage, err))
}

// Failed lists results whose writes exhausted their retries.
func (e *Engine) Failed() []MatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]MatchResult, 0, len(e.failed))
	for _, p := range e.failed {
		out = append(out, p.res)
	}
	sortByEnd(out)
	return out
}

// RetryFailed tries every failed result once more and reports how many are
// now committed.
func (e *Engine) RetryFailed(ctx context.Context) int {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()

	e.mu.Lock()
	todo := make([]*pending, 0, len(e.failed))
	for _, p := range e.failed {
		todo = append(todo, p)
	}
	e.mu.Unlock()

	ok := 0
	for _, p := range todo {
		var err error
		if p.res.Rated() {
			unlock := e.locks.lock(cacheKey(p.res.PlayerA, p.res.GameType), cacheKey(p.res.PlayerB, p.res.GameType))
			if p.computed {
				err = e.finish(ctx, p)
			} else {
				err = e.computeAndFinish(ctx, p)
			}
			unlock()
		} else {
			err = e.finish(ctx, p)
		}
		if err == nil {
			ok++
		}
	}
	return ok
}

func (e *Engine) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryInitial
	b.MaxInterval = e.cfg.RetryMax
	b.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, e.cfg.MaxRetries), ctx))
}

func recordOf(res MatchResult) storage.MatchRecord {
	return storage.MatchRecord{
		MatchID:      res.MatchID,
		GameType:     res.GameType,
		ParticipantA: res.PlayerA,
		ParticipantB: res.PlayerB,
		WinnerID:     res.WinnerID,
		Status:       res.Status,
		Reason:       res.Reason,
		FinalPayload: res.FinalPayload,
		CreatedAt:    res.CreatedAt,
		EndedAt:      res.EndedAt,
	}
}

func alertFor(res MatchResult, stage string, err error) Alert {
	return Alert{MatchID: res.MatchID, GameType: res.GameType, Stage: stage, Error: err.Error(), At: time.Now()}
}

func cacheKey(userID, gameType string) string {
	return userID + "|" + gameType
}
