package memory

import "sync"

// TokenResolver is a static token table implementing app.TokenResolver.
// Production deployments plug the auth service's resolver in instead.
type TokenResolver struct {
	mu     sync.RWMutex
	tokens map[string]int
}

func NewTokenResolver(tokens map[string]int) *TokenResolver {
	if tokens == nil {
		tokens = make(map[string]int)
	}
	return &TokenResolver{tokens: tokens}
}

func (r *TokenResolver) ResolveUserID(token string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.tokens[token]
	return userID, ok
}

// Register binds a token to a user id.
func (r *TokenResolver) Register(token string, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = userID
}
