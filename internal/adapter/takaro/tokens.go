package takaro

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenSkew is how long before exp a cached token is considered stale.
const tokenSkew = 30 * time.Second

type cachedToken struct {
	token   string
	expires time.Time
}

// tokenCache keeps execution tokens per domain. Tokens without a readable
// exp claim are never cached.
type tokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
	parser *jwt.Parser
	now    func() time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{
		tokens: make(map[string]cachedToken),
		parser: jwt.NewParser(),
		now:    time.Now,
	}
}

func (tc *tokenCache) get(domainID string) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	ct, ok := tc.tokens[domainID]
	if !ok {
		return "", false
	}
	if !tc.now().Before(ct.expires.Add(-tokenSkew)) {
		delete(tc.tokens, domainID)
		return "", false
	}
	return ct.token, true
}

func (tc *tokenCache) put(domainID, token string) {
	claims := jwt.RegisteredClaims{}
	// the API signs these; we only read exp
	if _, _, err := tc.parser.ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return
	}

	tc.mu.Lock()
	tc.tokens[domainID] = cachedToken{token: token, expires: claims.ExpiresAt.Time}
	tc.mu.Unlock()
}
