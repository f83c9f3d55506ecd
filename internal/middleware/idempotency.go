package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	replayedHeader    = "Idempotent-Replayed"
)

// storedReply is the response kept for an Idempotency-Key.
type storedReply struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// bodyRecorder tees the handler output so it can be stored after the fact.
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a mutating request carrying an
// Idempotency-Key that was already answered for the same caller, so a
// retried booking never takes a second seat. Redis failures and a nil
// client let the request through unprotected.
func Idempotency(client *redis.Client, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if client == nil || key == "" || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := idempotencyStoreKey(c, key)

		reply, err := loadReply(ctx, client, storeKey)
		switch {
		case err == nil:
			replay(c, reply)
			return
		case !errors.Is(err, redis.Nil):
			logger.Warn("idempotency_lookup_failed", slog.String("key", key), slog.Any("error", err))
			c.Next()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec

		c.Next()

		// 5xx answers are left unstored so the client can retry them.
		status := rec.Status()
		if status < http.StatusOK || status >= http.StatusInternalServerError {
			return
		}

		headers := make(http.Header)
		if ct := rec.Header().Get("Content-Type"); ct != "" {
			headers.Set("Content-Type", ct)
		}
		reply = &storedReply{StatusCode: status, Body: rec.body.Bytes(), Headers: headers}
		if err := storeReply(ctx, client, storeKey, reply); err != nil {
			logger.Warn("idempotency_store_failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func replay(c *gin.Context, reply *storedReply) {
	for name, values := range reply.Headers {
		for _, v := range values {
			c.Header(name, v)
		}
	}
	c.Header(replayedHeader, "true")
	c.Data(reply.StatusCode, "application/json", reply.Body)
	c.Abort()
}

// idempotencyStoreKey scopes the client key to the caller and route.
func idempotencyStoreKey(c *gin.Context, key string) string {
	owner := "anonymous"
	if actor, ok := ActorFrom(c); ok {
		owner = string(actor.Role) + ":" + actor.UserID
	}
	return "idempotency:" + owner + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key
}

func loadReply(ctx context.Context, client *redis.Client, key string) (*storedReply, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var reply storedReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func storeReply(ctx context.Context, client *redis.Client, key string, reply *storedReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, idempotencyTTL).Err()
}
