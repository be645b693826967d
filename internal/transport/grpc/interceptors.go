package grpc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"parley/backend/internal/domain"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyIdentity
)

const (
	// RequestIDMetadataKey carries the request id in both directions.
	RequestIDMetadataKey = "x-request-id"
	UserIDMetadataKey    = "x-user-id"
	UserRoleMetadataKey  = "x-user-role"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func NewRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// UnaryServerRequestIDInterceptor reads the request id from incoming metadata
// or mints one, stores it in the context and echoes it in response headers.
func UnaryServerRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := firstMetadata(ctx, RequestIDMetadataKey)
		if id == "" {
			id = NewRequestID()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
		return handler(WithRequestID(ctx, id), req)
	}
}

// UnaryServerTimeoutInterceptor bounds calls that arrive without a deadline.
func UnaryServerTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   domain.PartyRole
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok && id.UserID != ""
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// Claims is the access token payload issued by the upstream auth service.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var ErrBadToken = errors.New("invalid token")

func NewToken(userID string, role domain.PartyRole, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func ParseToken(raw, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || c.UserID == "" {
		return nil, ErrBadToken
	}
	return c, nil
}

// UnaryServerIdentityInterceptor resolves the caller. With a secret every
// call must carry a valid "authorization: Bearer <jwt>". Without one the
// x-user-id and x-user-role metadata set by a trusted gateway are used as is,
// and calls without them proceed anonymously.
func UnaryServerIdentityInterceptor(secret string, log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.auth"))

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		if secret == "" {
			userID := firstMetadata(ctx, UserIDMetadataKey)
			if userID == "" {
				return handler(ctx, req)
			}
			role := domain.PartyRole(strings.ToLower(firstMetadata(ctx, UserRoleMetadataKey)))
			return handler(WithIdentity(ctx, Identity{UserID: userID, Role: role}), req)
		}

		raw, ok := strings.CutPrefix(firstMetadata(ctx, "authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			log.Warn("missing bearer token", slog.String("method", info.FullMethod), slog.String("request_id", RequestIDFromContext(ctx)))
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := ParseToken(strings.TrimSpace(raw), secret)
		if err != nil {
			log.Warn("invalid bearer token", slog.Any("err", err), slog.String("method", info.FullMethod), slog.String("request_id", RequestIDFromContext(ctx)))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(WithIdentity(ctx, Identity{UserID: claims.UserID, Role: domain.PartyRole(claims.Role)}), req)
	}
}

// Limiter decides whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type peerEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// PeerLimiter is an in-process token bucket per key.
type PeerLimiter struct {
	mu        sync.Mutex
	clients   map[string]*peerEntry
	r         rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewPeerLimiter(rps float64, burst int) *PeerLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &PeerLimiter{
		clients: make(map[string]*peerEntry),
		r:       rate.Limit(rps),
		burst:   burst,
		idle:    3 * time.Minute,
		now:     time.Now,
	}
}

func (l *PeerLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, c := range l.clients {
			if now.Sub(c.seen) > l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &peerEntry{lim: rate.NewLimiter(l.r, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1), nil
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter is a fixed-window limiter shared by every server instance.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := redisFixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	var count int64
	switch v := res.(type) {
	case int64:
		count = v
	case string:
		count, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unexpected redis script result type %T", res)
	}
	return count <= int64(l.limit), nil
}

// UnaryServerRateLimitInterceptor throttles per caller: the identity's user
// id when known, the peer address otherwise. Limiter errors fail open.
func UnaryServerRateLimitInterceptor(l Limiter, log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.ratelimit"))

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if l == nil || strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		key := "peer:unknown"
		if id, ok := IdentityFromContext(ctx); ok {
			key = "user:" + id.UserID
		} else if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			key = "peer:" + p.Addr.String()
		}

		allowed, err := l.Allow(ctx, key)
		if err != nil {
			log.Warn("rate limiter error", slog.Any("err", err), slog.String("key", key))
			return handler(ctx, req)
		}
		if !allowed {
			log.Info("rate limited", slog.String("key", key), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return handler(ctx, req)
	}
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// rpcLogger scopes log to one call.
func rpcLogger(ctx context.Context, log *slog.Logger, rpc string) *slog.Logger {
	log = log.With(slog.String("rpc", rpc))
	if id := RequestIDFromContext(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

// requireIdentity returns the caller or an Unauthenticated status.
func requireIdentity(ctx context.Context, log *slog.Logger) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		log.Warn("unauthenticated request")
		return Identity{}, status.Error(codes.Unauthenticated, "caller identity is required")
	}
	return id, nil
}
