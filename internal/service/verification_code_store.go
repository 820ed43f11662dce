package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeStatus es el estado de un código de verificación.
type CodeStatus string

const (
	CodePending CodeStatus = "pending"
	CodeUsed    CodeStatus = "used"
)

var (
	ErrCodeNotFound    = errors.New("verification code not found")
	ErrCodeAlreadyUsed = errors.New("verification code already used")
	ErrCodeMismatch    = errors.New("verification code mismatch")
)

// VerificationCodeStore guarda un código de un solo uso por email, con TTL.
type VerificationCodeStore interface {
	// Put guarda code:pending y reemplaza cualquier registro previo.
	Put(ctx context.Context, email, code string, ttl time.Duration) error
	// Confirm pasa el registro de pending a used si el código coincide.
	Confirm(ctx context.Context, email, code string) error
	// Status devuelve el estado del registro; found es false si no existe o expiró.
	Status(ctx context.Context, email string) (status CodeStatus, found bool, err error)
	Delete(ctx context.Context, email string) error
}

type codeRecord struct {
	code      string
	status    CodeStatus
	expiresAt time.Time
}

type memoryCodeStore struct {
	mu    sync.Mutex
	items map[string]codeRecord
	now   func() time.Time
}

func NewMemoryCodeStore() VerificationCodeStore {
	return newMemoryCodeStore(func() time.Time { return time.Now().UTC() })
}

func newMemoryCodeStore(now func() time.Time) *memoryCodeStore {
	return &memoryCodeStore{
		items: make(map[string]codeRecord),
		now:   now,
	}
}

func (s *memoryCodeStore) Put(_ context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[email] = codeRecord{code: code, status: CodePending, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memoryCodeStore) Confirm(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lookup(email)
	if !ok {
		return ErrCodeNotFound
	}
	if rec.code == code && rec.status == CodePending {
		rec.status = CodeUsed
		s.items[email] = rec
		return nil
	}
	if rec.status == CodeUsed {
		return ErrCodeAlreadyUsed
	}
	return ErrCodeMismatch
}

func (s *memoryCodeStore) Status(_ context.Context, email string) (CodeStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lookup(email)
	if !ok {
		return "", false, nil
	}
	return rec.status, true, nil
}

func (s *memoryCodeStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, email)
	return nil
}

// lookup descarta registros expirados. Requiere s.mu tomado.
func (s *memoryCodeStore) lookup(email string) (codeRecord, bool) {
	rec, ok := s.items[email]
	if !ok {
		return codeRecord{}, false
	}
	if !s.now().Before(rec.expiresAt) {
		delete(s.items, email)
		return codeRecord{}, false
	}
	return rec, true
}

// redisConfirmScript compara y marca el código en un solo paso; KEEPTTL conserva la expiración.
// Devuelve 1 ok, 0 inexistente, 2 ya usado, 3 no coincide.
const redisConfirmScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return 0
end
local sep = string.find(v, ":", 1, true)
if not sep then
  return 0
end
local code = string.sub(v, 1, sep - 1)
local status = string.sub(v, sep + 1)
if code == ARGV[1] and status == "pending" then
  redis.call("SET", KEYS[1], code .. ":used", "KEEPTTL")
  return 1
end
if status == "used" then
  return 2
end
return 3
`

type redisCodeClient interface {
	redisEvaler
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisCodeStore struct {
	client  redisCodeClient
	prefix  string
	timeout time.Duration
}

func NewRedisCodeStore(client *redis.Client) VerificationCodeStore {
	if client == nil {
		return nil
	}
	return &redisCodeStore{
		client:  client,
		prefix:  "verify:",
		timeout: 500 * time.Millisecond,
	}
}

func (s *redisCodeStore) Put(ctx context.Context, email, code string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+email, code+":"+string(CodePending), ttl).Err()
}

func (s *redisCodeStore) Confirm(ctx context.Context, email, code string) error {
	// Una vez iniciada, la transición a used termina aunque el llamador se vaya.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	result, err := s.client.Eval(ctx, redisConfirmScript, []string{s.prefix + email}, code).Int()
	if err != nil {
		return fmt.Errorf("confirm code: %w", err)
	}
	switch result {
	case 1:
		return nil
	case 0:
		return ErrCodeNotFound
	case 2:
		return ErrCodeAlreadyUsed
	default:
		return ErrCodeMismatch
	}
}

func (s *redisCodeStore) Status(ctx context.Context, email string) (CodeStatus, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	value, err := s.client.Get(ctx, s.prefix+email).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	_, status, ok := strings.Cut(value, ":")
	if !ok {
		return "", false, nil
	}
	return CodeStatus(status), true, nil
}

func (s *redisCodeStore) Delete(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+email).Err()
}
