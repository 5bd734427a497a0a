package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader carries the client's idempotency key.
	IdempotencyKeyHeader = "X-Idempotency-Key"
	idempotencyPrefix    = "idempotency:"
)

type idempotencyStatus string

const (
	idemProcessing idempotencyStatus = "processing"
	idemCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody string            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at"`
}

// IdempotencyStore is the subset of the Redis client the middleware uses.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig tunes NewIdempotency.
type IdempotencyConfig struct {
	TTL           time.Duration // lifetime of completed records
	ProcessingTTL time.Duration // lifetime of the in-flight marker
}

// NewIdempotency replays the stored response when a request repeats an
// X-Idempotency-Key.  Requests without the header pass through.  A key
// reused with a different method, path or body is rejected with 422, and
// a key whose first request is still running gets 409.  Server errors are
// not stored so the client can retry them.  Redis failures fail open.
func NewIdempotency(cfg IdempotencyConfig, store IdempotencyStore) echo.MiddlewareFunc {
	if store == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(IdempotencyKeyHeader)
			if key == "" {
				return next(c)
			}
			if len(key) > 255 {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": "idempotency key too long"})
			}

			var body []byte
			if c.Request().Body != nil {
				body, _ = io.ReadAll(c.Request().Body)
				c.Request().Body = io.NopCloser(bytes.NewReader(body))
			}
			hash := requestHash(c.Request().Method, c.Request().URL.Path, body)
			redisKey := idempotencyPrefix + key
			ctx := c.Request().Context()

			rec, err := loadRecord(ctx, store, redisKey)
			if err != nil && !errors.Is(err, redis.Nil) {
				return next(c)
			}
			if rec != nil {
				return replay(c, rec, hash)
			}

			rec = &idempotencyRecord{Status: idemProcessing, RequestHash: hash, CreatedAt: time.Now().UTC()}
			data, _ := json.Marshal(rec)
			ok, err := store.SetNX(ctx, redisKey, string(data), cfg.ProcessingTTL).Result()
			if err != nil {
				return next(c)
			}
			if !ok {
				if existing, _ := loadRecord(ctx, store, redisKey); existing != nil {
					return replay(c, existing, hash)
				}
				return next(c)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			herr := next(c)
			if herr != nil {
				c.Error(herr)
			}

			bg := context.WithoutCancel(ctx)
			if cw.status >= http.StatusInternalServerError {
				_ = store.Del(bg, redisKey).Err()
				return nil
			}
			rec.Status = idemCompleted
			rec.ResponseCode = cw.status
			rec.ResponseBody = cw.buf.String()
			if data, err := json.Marshal(rec); err == nil {
				_ = store.Set(bg, redisKey, string(data), cfg.TTL).Err()
			}
			return nil
		}
	}
}

func replay(c echo.Context, rec *idempotencyRecord, hash string) error {
	if rec.RequestHash != hash {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":   "idempotency_key_reused",
			"message": "Idempotency key already used with a different request",
		})
	}
	if rec.Status == idemProcessing {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":   "request_in_progress",
			"message": "A request with this idempotency key is already being processed",
		})
	}
	c.Response().Header().Set("Idempotent-Replayed", "true")
	return c.Blob(rec.ResponseCode, echo.MIMEApplicationJSONCharsetUTF8, []byte(rec.ResponseBody))
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func loadRecord(ctx context.Context, store IdempotencyStore, key string) (*idempotencyRecord, error) {
	raw, err := store.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
