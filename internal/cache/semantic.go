// Package cache also implements the two-tier semantic response cache used
// by the orchestrator: an exact-match tier keyed by prompt hash, and an
// optional embedding-similarity tier for near-duplicate prompts.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Embedder produces a vector embedding for a prompt. Adapters that expose
// an embeddings API (openaicompat, gemini) implement this.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats reports the cache's current size and hit-rate counters.
type Stats struct {
	Enabled             bool
	SemanticEnabled     bool
	TotalKeys           int64
	KeyspaceHits        int64
	KeyspaceMisses      int64
	SimilarityThreshold float64
	TTLSeconds          int64
}

// SemanticCache is the (provider, prompt) -> response cache described in
// the gateway's caching design: an always-on exact tier plus an optional
// embedding-similarity tier.
//
// A nil backing store degrades every operation to a pass-through: Get
// always misses and Set is a no-op, the same graceful-degradation
// behavior as a Redis-unavailable ExactCache. This keeps the
// orchestrator's cache calls unconditional — it never needs to check
// whether caching is configured.
type SemanticCache struct {
	store               Cache
	rdb                 *redis.Client // non-nil only when store is Redis-backed; needed for hash ops
	embedder            Embedder
	similarityThreshold float64
	ttl                 time.Duration

	hits   int64
	misses int64
}

// NewSemanticCache builds a cache over store. rdb must be the same Redis
// client store.(*ExactCache) wraps, or nil when store is a MemoryCache —
// in that case the semantic (embedding) tier is disabled because it needs
// Redis's key-scan and hash primitives, and only the exact tier is active.
func NewSemanticCache(store Cache, rdb *redis.Client, embedder Embedder, similarityThreshold float64, ttl time.Duration) *SemanticCache {
	return &SemanticCache{
		store:               store,
		rdb:                 rdb,
		embedder:            embedder,
		similarityThreshold: similarityThreshold,
		ttl:                 ttl,
	}
}

func exactKey(provider, prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return fmt.Sprintf("cache:%s:exact:%x", provider, sum)
}

func semanticKeyPrefix(provider string) string {
	return fmt.Sprintf("cache:%s:semantic:", provider)
}

func semanticKey(provider, prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return semanticKeyPrefix(provider) + fmt.Sprintf("%x", sum)[:8]
}

// Get looks up prompt for provider: first the exact tier, then (if an
// embedder is configured and the exact tier misses) the nearest neighbor
// in the semantic tier above the similarity threshold.
//
// Any backing-store failure is treated as a miss — caching is always
// best-effort and never fails the caller's request.
func (c *SemanticCache) Get(ctx context.Context, provider, prompt string) (string, bool) {
	if c.store == nil {
		return "", false
	}

	if data, ok := c.store.Get(ctx, exactKey(provider, prompt)); ok {
		c.hits++
		return string(data), true
	}

	if c.embedder == nil || c.rdb == nil {
		c.misses++
		return "", false
	}

	resp, err := c.embedder.Embed(ctx, []string{prompt})
	if err != nil || len(resp) == 0 {
		c.misses++
		return "", false
	}
	queryVec := resp[0]

	keys, err := c.rdb.Keys(ctx, semanticKeyPrefix(provider)+"*").Result()
	if err != nil {
		c.misses++
		return "", false
	}

	bestScore := -1.0
	bestResponse := ""
	for _, key := range keys {
		fields, err := c.rdb.HMGet(ctx, key, "embedding", "response").Result()
		if err != nil || len(fields) != 2 {
			continue
		}
		embStr, ok := fields[0].(string)
		if !ok {
			continue
		}
		respStr, ok := fields[1].(string)
		if !ok {
			continue
		}
		candidate := decodeEmbedding(embStr)
		if len(candidate) == 0 {
			continue
		}
		score := cosineSimilarity(queryVec, candidate)
		if score > bestScore {
			bestScore = score
			bestResponse = respStr
		}
	}

	if bestScore >= c.similarityThreshold {
		c.hits++
		return bestResponse, true
	}

	c.misses++
	return "", false
}

// Set writes response for (provider, prompt) into the exact tier and,
// when an embedder is configured, the semantic tier. All semantic-tier
// fields plus the expiry are written in a single pipeline so concurrent
// readers never observe a partially populated hash.
//
// Errors are logged and swallowed — cache writes are fire-and-forget.
func (c *SemanticCache) Set(ctx context.Context, provider, prompt, response string) {
	if c.store == nil {
		return
	}

	if err := c.store.Set(ctx, exactKey(provider, prompt), []byte(response), c.ttl); err != nil {
		slog.WarnContext(ctx, "semantic_cache_set_exact_failed", slog.String("error", err.Error()))
	}

	if c.embedder == nil || c.rdb == nil {
		return
	}

	vecs, err := c.embedder.Embed(ctx, []string{prompt})
	if err != nil || len(vecs) == 0 {
		slog.WarnContext(ctx, "semantic_cache_embed_failed", slog.String("provider", provider))
		return
	}

	key := semanticKey(provider, prompt)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"prompt":    prompt,
		"embedding": encodeEmbedding(vecs[0]),
		"response":  response,
	})
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "semantic_cache_set_semantic_failed", slog.String("error", err.Error()))
	}
}

// Stats reports cache health and hit/miss counters.
func (c *SemanticCache) Stats(ctx context.Context) Stats {
	s := Stats{
		Enabled:             c.store != nil,
		SemanticEnabled:     c.embedder != nil && c.rdb != nil,
		SimilarityThreshold: c.similarityThreshold,
		TTLSeconds:          int64(c.ttl.Seconds()),
		KeyspaceHits:        c.hits,
		KeyspaceMisses:      c.misses,
	}
	if c.rdb != nil {
		if n, err := c.rdb.DBSize(ctx).Result(); err == nil {
			s.TotalKeys = n
		}
	}
	return s
}

// Clear purges every gateway cache key. Used by POST /api/v1/cache/clear.
func (c *SemanticCache) Clear(ctx context.Context) error {
	if mc, ok := c.store.(*MemoryCache); ok {
		mc.mu.Lock()
		mc.items = make(map[string]memItem)
		mc.mu.Unlock()
	}
	if c.rdb == nil {
		return nil
	}
	keys, err := c.rdb.Keys(ctx, "cache:*").Result()
	if err != nil {
		return fmt.Errorf("cache: clear: scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: clear: del: %w", err)
	}
	return nil
}

func encodeEmbedding(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

func decodeEmbedding(s string) []float32 {
	if len(s)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(s)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4]))
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
