package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "confirm:v1:"
	emailTokenSize = 32
	phoneCodeSize  = 6
)

var phoneCodeSpace = big.NewInt(1_000_000)

// consumeScript deletes KEYS[1] only if it holds ARGV[1].
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TokenStore keeps hashed confirmation tokens with a time to live. Saving a key
// replaces any token already outstanding for it. Consume deletes the token only
// when hash matches, atomically, so a token verifies at most once; a mismatch
// leaves it outstanding.
type TokenStore interface {
	Save(ctx context.Context, key, hash string, ttl time.Duration) error
	Consume(ctx context.Context, key, hash string) (bool, error)
	Delete(ctx context.Context, key string) error
}

func tokenKey(id string, purpose Purpose) string {
	return tokenKeyPrefix + string(purpose) + ":" + id
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func hashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// newToken mints an opaque URL-safe token for email links or a numeric code for SMS.
func newToken(purpose Purpose) (string, error) {
	if purpose == PurposePhoneConfirmation {
		n, err := rand.Int(rand.Reader, phoneCodeSpace)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%0*d", phoneCodeSize, n), nil
	}

	b := make([]byte, emailTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RedisTokenStore keeps tokens in Redis, relying on key expiry for the TTL.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore builds a Redis-backed token store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Save(ctx context.Context, key, hash string, ttl time.Duration) error {
	return s.client.Set(ctx, key, hash, ttl).Err()
}

func (s *RedisTokenStore) Consume(ctx context.Context, key, hash string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{key}, hash).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

type memoryToken struct {
	hash      string
	expiresAt time.Time
}

type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

// NewMemoryTokenStore builds an in-memory token store for development and tests.
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{tokens: make(map[string]memoryToken), now: time.Now}
}

func (s *memoryTokenStore) Save(_ context.Context, key, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = memoryToken{hash: hash, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memoryTokenStore) Consume(_ context.Context, key, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(tok.expiresAt) {
		delete(s.tokens, key)
		return false, nil
	}
	if !hashesEqual(tok.hash, hash) {
		return false, nil
	}
	delete(s.tokens, key)
	return true, nil
}

func (s *memoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}
