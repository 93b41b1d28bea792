package matchmaker

import (
	"context"
	"math/rand"
	"sync"
)

type memRepo struct {
	mu      sync.Mutex
	pools   map[string]map[string]struct{} // gameType -> set(userID)
	players map[string]string              // userID -> gameType
	matches map[string]string              // gameType|userID -> matchID
}

func NewMemoryRepo() Repo {
	return &memRepo{
		pools:   make(map[string]map[string]struct{}),
		players: make(map[string]string),
		matches: make(map[string]string),
	}
}

func (m *memRepo) Enqueue(ctx context.Context, gameType, userID string, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[gameType]; !ok {
		m.pools[gameType] = make(map[string]struct{})
	}
	m.pools[gameType][userID] = struct{}{}
	m.players[userID] = gameType
	// TTL is ignored in memory
	return nil
}

func (m *memRepo) PopPair(ctx context.Context, gameType string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.pools[gameType]
	if len(s) < 2 {
		return nil, nil
	}
	ids := make([]string, 0, len(s))
	for u := range s {
		ids = append(ids, u)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	chosen := ids[:2]
	for _, u := range chosen {
		delete(s, u)
		delete(m.players, u)
	}
	if len(s) == 0 {
		delete(m.pools, gameType)
	}
	return chosen, nil
}

func (m *memRepo) Remove(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gameType, ok := m.players[userID]
	if !ok {
		return nil
	}
	if s, ok := m.pools[gameType]; ok {
		delete(s, userID)
		if len(s) == 0 {
			delete(m.pools, gameType)
		}
	}
	delete(m.players, userID)
	return nil
}

func (m *memRepo) Count(ctx context.Context, gameType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pools[gameType])), nil
}

func (m *memRepo) SavePairing(ctx context.Context, pr *Pairing, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range pr.Players {
		m.matches[pr.GameType+"|"+u] = pr.MatchID
	}
	return nil
}

func (m *memRepo) PlayerMatch(ctx context.Context, gameType, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches[gameType+"|"+userID], nil
}
