// Package blobstore is a key-addressed store for large binary attachments,
// kept separate from the campaign document so file payloads never count
// against the document's storage budget or travel with sync pushes.
package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound     = errors.New("blob not found")
	ErrInvalidInput = errors.New("invalid input")
)

const operationTimeout = 5 * time.Second

// Record is one stored attachment. Data is a base64 data URI; Size is the
// encoded size and RawSize the original file size.
type Record struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	RawSize    int64  `json:"rawSize"`
	Type       string `json:"type"`
	Data       string `json:"data"`
	UploadedAt string `json:"uploadedAt"`
}

type Store struct {
	path string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// Open prepares a store backed by the SQLite database at path. The database
// is created and migrated lazily on first use.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &Store{path: path}, nil
}

func (s *Store) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := sql.Open("sqlite3", s.path)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()
		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS blobs (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				size INTEGER NOT NULL,
				raw_size INTEGER NOT NULL,
				content_type TEXT NOT NULL DEFAULT '',
				data TEXT NOT NULL,
				uploaded_at TEXT NOT NULL DEFAULT ''
			)`)
		if err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

// Put inserts or replaces a record by id.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.ID == 0 {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, name, size, raw_size, content_type, data, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET name = excluded.name, size = excluded.size,
			raw_size = excluded.raw_size, content_type = excluded.content_type,
			data = excluded.data, uploaded_at = excluded.uploaded_at`,
		rec.ID, rec.Name, rec.Size, rec.RawSize, rec.Type, rec.Data, rec.UploadedAt)
	return err
}

func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	if err := s.ensureReady(); err != nil {
		return Record{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, size, raw_size, content_type, data, uploaded_at FROM blobs WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Name, &rec.Size, &rec.RawSize, &rec.Type, &rec.Data, &rec.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// All returns every record, oldest id first.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, size, raw_size, content_type, data, uploaded_at FROM blobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Size, &rec.RawSize, &rec.Type, &rec.Data, &rec.UploadedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	return err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
