package matchmaker

import "context"

// Repo is the pairing pool store.
type Repo interface {
	// Enqueue adds userID to the pool of gameType.
	Enqueue(ctx context.Context, gameType, userID string, ttlSeconds int) error
	// PopPair atomically takes two random players, or none.
	PopPair(ctx context.Context, gameType string) ([]string, error)
	// Remove takes userID out of whatever pool holds it.
	Remove(ctx context.Context, userID string) error
	Count(ctx context.Context, gameType string) (int64, error)

	SavePairing(ctx context.Context, p *Pairing, ttlSeconds int) error
	// PlayerMatch returns the last match paired for userID in gameType, or "".
	PlayerMatch(ctx context.Context, gameType, userID string) (string, error)
}
