package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// CachedResponse is an HTTP response body kept for reuse until ExpiresAt.
type CachedResponse struct {
	Key       string
	URL       string
	Endpoint  string
	Status    int
	Body      []byte
	FetchedAt time.Time
	ExpiresAt time.Time
}

// CacheKey derives the cache key for a canonical request URL.
func CacheKey(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// GetCachedResponse returns the cached response for key, or nil if there is
// none or it expired before now.
func (s *Store) GetCachedResponse(ctx context.Context, key string, now time.Time) (*CachedResponse, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, url, endpoint, status, body_compressed, fetched_at, expires_at
		FROM http_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key, now.Unix())

	var (
		resp       CachedResponse
		compressed []byte
		fetchedAt  int64
		expiresAt  int64
	)
	err := row.Scan(&resp.Key, &resp.URL, &resp.Endpoint, &resp.Status, &compressed, &fetchedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "query cached response")
	}

	body, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, eris.Wrap(err, "decompress cached body")
	}
	resp.Body = body
	resp.FetchedAt = time.Unix(fetchedAt, 0).UTC()
	resp.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &resp, nil
}

// PutCachedResponse stores or replaces a cached response.
func (s *Store) PutCachedResponse(ctx context.Context, resp CachedResponse) error {
	compressed := encoder.EncodeAll(resp.Body, nil)
	hash := sha256.Sum256(resp.Body)

	_, err := s.execWithRetry(ctx, `
		INSERT INTO http_cache
		(cache_key, url, endpoint, status, body_compressed, body_hash, size_bytes, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			url = excluded.url,
			endpoint = excluded.endpoint,
			status = excluded.status,
			body_compressed = excluded.body_compressed,
			body_hash = excluded.body_hash,
			size_bytes = excluded.size_bytes,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at
	`, resp.Key, resp.URL, resp.Endpoint, resp.Status, compressed, hex.EncodeToString(hash[:]),
		len(resp.Body), resp.FetchedAt.Unix(), resp.ExpiresAt.Unix())
	if err != nil {
		return eris.Wrap(err, "insert cached response")
	}
	return nil
}

// RemoveExpiredResponses deletes entries that expired at or before now.
func (s *Store) RemoveExpiredResponses(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM http_cache WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, eris.Wrap(err, "delete expired responses")
	}
	return result.RowsAffected()
}

// ClearCache deletes every cached response.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM http_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "clear cache")
	}
	return result.RowsAffected()
}

// CacheStats contains storage statistics for the response cache.
type CacheStats struct {
	TotalCount        int
	ExpiredCount      int
	CompressedBytes   int64
	UncompressedBytes int64
	OldestFetchedAt   time.Time
	NewestFetchedAt   time.Time
	CountByEndpoint   map[string]int
}

// GetCacheStats returns storage statistics for the response cache.
func (s *Store) GetCacheStats(ctx context.Context, now time.Time) (*CacheStats, error) {
	stats := &CacheStats{CountByEndpoint: make(map[string]int)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(LENGTH(body_compressed)), 0),
		       COALESCE(SUM(size_bytes), 0),
		       MIN(fetched_at), MAX(fetched_at)
		FROM http_cache
	`, now.Unix())
	var oldest, newest sql.NullInt64
	if err := row.Scan(&stats.TotalCount, &stats.ExpiredCount, &stats.CompressedBytes,
		&stats.UncompressedBytes, &oldest, &newest); err != nil {
		return nil, eris.Wrap(err, "query cache stats")
	}
	if oldest.Valid {
		stats.OldestFetchedAt = time.Unix(oldest.Int64, 0).UTC()
	}
	if newest.Valid {
		stats.NewestFetchedAt = time.Unix(newest.Int64, 0).UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, COUNT(*)
		FROM http_cache
		GROUP BY endpoint
	`)
	if err != nil {
		return nil, eris.Wrap(err, "query cache endpoints")
	}
	defer rows.Close()

	for rows.Next() {
		var endpoint string
		var count int
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, err
		}
		stats.CountByEndpoint[endpoint] = count
	}

	return stats, rows.Err()
}
