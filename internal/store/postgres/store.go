package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"jobqueue-go/internal/metrics"
	"jobqueue-go/internal/store"
)

const storeName = "postgres"

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// SQL templates. Lists are ordered by seq ascending; the head is the lowest seq.
const (
	sqlAddMember = `
INSERT INTO jobqueue_sets (set_key, member)
VALUES ($1, $2)
ON CONFLICT DO NOTHING;`

	sqlRemoveMember = `DELETE FROM jobqueue_sets WHERE set_key = $1 AND member = $2;`

	sqlAppend = `
INSERT INTO jobqueue_lists (list_key, entry_id, entry)
VALUES ($1, $2, $3);`

	sqlPopHead = `
DELETE FROM jobqueue_lists
WHERE seq = (
  SELECT seq
  FROM jobqueue_lists
  WHERE list_key = $1
  ORDER BY seq
  FOR UPDATE SKIP LOCKED
  LIMIT 1
)
RETURNING entry;`

	// Re-sequencing puts the moved row at the tail of the destination list.
	sqlMoveHead = `
UPDATE jobqueue_lists
SET list_key = $2,
    seq = nextval(pg_get_serial_sequence('jobqueue_lists', 'seq'))
WHERE seq = (
  SELECT seq
  FROM jobqueue_lists
  WHERE list_key = $1
  ORDER BY seq
  FOR UPDATE SKIP LOCKED
  LIMIT 1
)
RETURNING entry;`

	sqlRange = `
SELECT entry
FROM jobqueue_lists
WHERE list_key = $1
ORDER BY seq
OFFSET $2
LIMIT $3;`

	sqlRemoveByID = `
DELETE FROM jobqueue_lists
WHERE seq = (
  SELECT seq
  FROM jobqueue_lists
  WHERE list_key = $1 AND entry_id = $2
  ORDER BY seq
  FOR UPDATE SKIP LOCKED
  LIMIT 1
);`

	sqlLen = `SELECT count(*) FROM jobqueue_lists WHERE list_key = $1;`
)

// Store implements store.Store on top of two PostgreSQL tables.
// PostgreSQL has no blocking pop, so the queue polls it.
type Store struct {
	db *DB
}

// NewStore creates a new PostgreSQL-backed store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// --- Set Operations ---

// AddMember inserts member, reporting whether this call created the row.
func (s *Store) AddMember(ctx context.Context, setKey, member string) (added bool, err error) {
	defer metrics.ObserveStorage(storeName, "add_member", time.Now(), &err)

	tag, err := s.db.pool.Exec(ctx, sqlAddMember, setKey, member)
	if err != nil {
		return false, fmt.Errorf("failed to add set member: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// RemoveMember deletes member from the set.
func (s *Store) RemoveMember(ctx context.Context, setKey, member string) (err error) {
	defer metrics.ObserveStorage(storeName, "remove_member", time.Now(), &err)

	if _, err := s.db.pool.Exec(ctx, sqlRemoveMember, setKey, member); err != nil {
		return fmt.Errorf("failed to remove set member: %w", err)
	}

	return nil
}

// --- List Operations ---

// Append inserts an entry at the tail of the list.
func (s *Store) Append(ctx context.Context, listKey string, entry []byte) (err error) {
	defer metrics.ObserveStorage(storeName, "append", time.Now(), &err)

	id, err := store.EntryID(entry)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}

	if _, err := s.db.pool.Exec(ctx, sqlAppend, listKey, id, entry); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}

	return nil
}

// PopHead deletes and returns the head row. block is ignored.
func (s *Store) PopHead(ctx context.Context, listKey string, block time.Duration) (entry []byte, err error) {
	defer metrics.ObserveStorage(storeName, "pop_head", time.Now(), &err)

	if err := s.db.pool.QueryRow(ctx, sqlPopHead, listKey).Scan(&entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop entry: %w", err)
	}

	return entry, nil
}

// MoveHead relabels the head row of srcKey into dstKey in one statement. block is ignored.
func (s *Store) MoveHead(ctx context.Context, srcKey, dstKey string, block time.Duration) (entry []byte, err error) {
	defer metrics.ObserveStorage(storeName, "move_head", time.Now(), &err)

	if err := s.db.pool.QueryRow(ctx, sqlMoveHead, srcKey, dstKey).Scan(&entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to move entry: %w", err)
	}

	return entry, nil
}

// Range returns up to count entries from start, head first.
func (s *Store) Range(ctx context.Context, listKey string, start, count int64) (entries [][]byte, err error) {
	defer metrics.ObserveStorage(storeName, "range", time.Now(), &err)

	result := make([][]byte, 0)
	if start < 0 || count <= 0 {
		return result, nil
	}

	rows, err := s.db.pool.Query(ctx, sqlRange, listKey, start, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry []byte
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	return result, nil
}

// RemoveByID deletes the oldest row in listKey with the given entry id.
func (s *Store) RemoveByID(ctx context.Context, listKey, id string) (removed bool, err error) {
	defer metrics.ObserveStorage(storeName, "remove_by_id", time.Now(), &err)

	tag, err := s.db.pool.Exec(ctx, sqlRemoveByID, listKey, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove entry: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Len counts the rows of the list.
func (s *Store) Len(ctx context.Context, listKey string) (n int64, err error) {
	defer metrics.ObserveStorage(storeName, "len", time.Now(), &err)

	if err := s.db.pool.QueryRow(ctx, sqlLen, listKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	return n, nil
}

// --- Lifecycle ---

// Blocking reports false: the queue polls PostgreSQL.
func (s *Store) Blocking() bool {
	return false
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
