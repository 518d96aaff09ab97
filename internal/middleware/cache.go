package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-marketplace/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// FeedCache caches listing feed responses in Redis. Keys embed a generation
// number that every successful listing write increments, so a write makes
// all earlier feed entries unreachable at once; the TTL only bounds memory.
type FeedCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

// NewFeedCache returns a cache that is a no-op when caching is disabled or
// rdb is nil.
func NewFeedCache(cfg config.CacheConfig, rdb *redis.Client) *FeedCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &FeedCache{cfg: cfg, rdb: rdb}
}

func (fc *FeedCache) enabled() bool { return fc != nil && fc.cfg.Enabled && fc.rdb != nil }

func (fc *FeedCache) genKey() string { return fc.cfg.Prefix + ":gen" }

func (fc *FeedCache) generation(ctx context.Context) (int64, error) {
	n, err := fc.rdb.Get(ctx, fc.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// key hashes route and query; the query carries every feed filter.
func (fc *FeedCache) key(gen int64, c echo.Context) string {
	r := c.Request()
	tail := strings.Join([]string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}, ":")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%d:%x", fc.cfg.Prefix, gen, sum[:])
}

// Bump starts a new generation.
func (fc *FeedCache) Bump(ctx context.Context) error {
	if !fc.enabled() {
		return nil
	}
	return fc.rdb.Incr(ctx, fc.genKey()).Err()
}

// Read serves cached 200 responses for the configured methods and stores
// fresh ones. Redis failures fall through to the handler.
func (fc *FeedCache) Read() echo.MiddlewareFunc {
	if !fc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(fc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !fc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			gen, err := fc.generation(ctx)
			if err != nil {
				slog.Warn("feed cache: read generation failed", "err", err)
				return next(c)
			}
			key := fc.key(gen, c)

			if bs, err := fc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "X-Cache") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			// A truncated body must never be replayed.
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := make(http.Header, len(c.Response().Header()))
			for k, vals := range c.Response().Header() {
				hdr[k] = append([]string(nil), vals...)
			}
			if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
				if err := fc.rdb.SetEx(context.Background(), key, payload, fc.cfg.TTL).Err(); err != nil {
					slog.Warn("feed cache: store failed", "err", err)
				}
			}
			return nil
		}
	}
}

// Invalidate bumps the generation after a write route answered with 2xx.
func (fc *FeedCache) Invalidate() echo.MiddlewareFunc {
	if !fc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if s := c.Response().Status; err == nil && s >= 200 && s < 300 {
				if err := fc.Bump(context.Background()); err != nil {
					slog.Warn("feed cache: invalidate failed", "err", err)
				}
			}
			return err
		}
	}
}
