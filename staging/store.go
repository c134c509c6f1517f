// Package staging reads and writes the Redis-backed upload area shared with
// the external bank receiver. Uploaded rows for one (tenant, loan_type,
// file_type) live in a list under extbank:{tenant}:{loan}:{file}, one JSON
// object per element, so LLEN answers the row count in O(1) and LRANGE
// windows stream the data in bounded-memory chunks. Rows that failed
// validation are appended under extbank_failed:* with a TTL for later
// preview/download.
package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	uploadPrefix = "extbank:"
	failedPrefix = "extbank_failed:"

	// DefaultChunkSize bounds the rows decoded per Iterate window.
	DefaultChunkSize = 50000

	// FailedRowTTL bounds how long failed raw rows stay retrievable.
	FailedRowTTL = 24 * time.Hour
)

// Store is the upload-area client.
type Store struct {
	rdb       *redis.Client
	chunkSize int64
}

// NewStore wraps a Redis client. A chunkSize of 0 selects DefaultChunkSize.
func NewStore(rdb *redis.Client, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{rdb: rdb, chunkSize: int64(chunkSize)}
}

func uploadKey(tenantID, loanType, fileType string) string {
	return fmt.Sprintf("%s%s:%s:%s", uploadPrefix, tenantID, loanType, fileType)
}

func failedKey(tenantID, loanType, fileType string) string {
	return fmt.Sprintf("%s%s:%s:%s", failedPrefix, tenantID, loanType, fileType)
}

// RowCount returns the number of uploaded rows. O(1).
func (s *Store) RowCount(ctx context.Context, tenantID, loanType, fileType string) (int, error) {
	n, err := s.rdb.LLen(ctx, uploadKey(tenantID, loanType, fileType)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting uploaded rows: %w", err)
	}
	return int(n), nil
}

// Iterate streams the uploaded rows to fn in chunks of at most chunkSize.
// The sequence is finite and single-pass; iteration stops on the first fn
// error. Memory footprint is one decoded chunk.
func (s *Store) Iterate(ctx context.Context, tenantID, loanType, fileType string, fn func(rows []map[string]string) error) error {
	var key = uploadKey(tenantID, loanType, fileType)
	var total int

	for start := int64(0); ; start += s.chunkSize {
		raw, err := s.rdb.LRange(ctx, key, start, start+s.chunkSize-1).Result()
		if err != nil {
			return fmt.Errorf("reading upload chunk at %d: %w", start, err)
		}
		if len(raw) == 0 {
			break
		}

		var rows = make([]map[string]string, 0, len(raw))
		for i, blob := range raw {
			var row map[string]string
			if err := json.Unmarshal([]byte(blob), &row); err != nil {
				return fmt.Errorf("decoding uploaded row %d: %w", start+int64(i), err)
			}
			rows = append(rows, row)
		}
		total += len(rows)

		if err := fn(rows); err != nil {
			return err
		}
		if int64(len(raw)) < s.chunkSize {
			break
		}
	}

	log.WithFields(log.Fields{
		"tenant":   tenantID,
		"loanType": loanType,
		"fileType": fileType,
		"rows":     total,
	}).Debug("streamed uploaded rows")
	return nil
}

// StoreRows appends uploaded rows. Used by the upload receiver and by tests
// to seed data.
func (s *Store) StoreRows(ctx context.Context, tenantID, loanType, fileType string, rows []map[string]string) error {
	return s.appendRows(ctx, uploadKey(tenantID, loanType, fileType), rows, 0)
}

// StoreFailedRows appends raw rows that failed validation, refreshing the
// TTL on the failed-row key.
func (s *Store) StoreFailedRows(ctx context.Context, tenantID, loanType, fileType string, rows []map[string]string) error {
	return s.appendRows(ctx, failedKey(tenantID, loanType, fileType), rows, FailedRowTTL)
}

func (s *Store) appendRows(ctx context.Context, key string, rows []map[string]string, ttl time.Duration) error {
	if len(rows) == 0 {
		return nil
	}
	var blobs = make([]interface{}, 0, len(rows))
	for _, row := range rows {
		blob, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
		blobs = append(blobs, blob)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, blobs...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending %d rows to %s: %w", len(rows), key, err)
	}
	return nil
}

// FailedRows reads back the captured failed rows for preview/download.
func (s *Store) FailedRows(ctx context.Context, tenantID, loanType, fileType string) ([]map[string]string, error) {
	raw, err := s.rdb.LRange(ctx, failedKey(tenantID, loanType, fileType), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading failed rows: %w", err)
	}
	var rows = make([]map[string]string, 0, len(raw))
	for _, blob := range raw {
		var row map[string]string
		if err := json.Unmarshal([]byte(blob), &row); err != nil {
			return nil, fmt.Errorf("decoding failed row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ClearUpload deletes the uploaded data for one file type. Called at the end
// of every sync.
func (s *Store) ClearUpload(ctx context.Context, tenantID, loanType, fileType string) error {
	if err := s.rdb.Del(ctx, uploadKey(tenantID, loanType, fileType)).Err(); err != nil {
		return fmt.Errorf("clearing upload data: %w", err)
	}
	return nil
}

// ClearFailed deletes captured failed rows for one file type.
func (s *Store) ClearFailed(ctx context.Context, tenantID, loanType, fileType string) error {
	if err := s.rdb.Del(ctx, failedKey(tenantID, loanType, fileType)).Err(); err != nil {
		return fmt.Errorf("clearing failed rows: %w", err)
	}
	return nil
}
