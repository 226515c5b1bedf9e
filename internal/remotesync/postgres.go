package remotesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/campkeeper/campkeeper/internal/campaign"
)

const (
	postgresDocumentTableName = "campkeeper_documents"
	postgresNotifyChannel     = "campkeeper_document_changed"
	postgresOperationTimeout  = 5 * time.Second
	postgresMinReconnect      = time.Second
	postgresMaxReconnect      = 30 * time.Second
	postgresPollFallback      = 90 * time.Second
)

// PostgresRemoteStore keeps the remote document in a single row per campaign
// key and signals changes over LISTEN/NOTIFY, so subscribers learn about
// updates without polling. A slow poll remains as a fallback for notifications
// lost across reconnects.
type PostgresRemoteStore struct {
	dsn       string
	tableName string
	docKey    string
	logger    campaign.Logger

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresRemoteStore(dsn, campaignID string, logger campaign.Logger) (*PostgresRemoteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, campaign.ErrInvalidInput
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		campaignID = "default"
	}
	return &PostgresRemoteStore{
		dsn:       dsn,
		tableName: postgresDocumentTableName,
		docKey:    campaignID,
		logger:    logger,
	}, nil
}

func (s *PostgresRemoteStore) ensureReady() error {
	if s == nil {
		return campaign.ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := sql.Open("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				doc_key TEXT PRIMARY KEY,
				snapshot TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, pq.QuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

// Publish upserts the document row and notifies subscribers in the same
// statement batch.
func (s *PostgresRemoteStore) Publish(ctx context.Context, doc campaign.Document) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (doc_key, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (doc_key)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
		pq.QuoteIdentifier(s.tableName))
	if _, err := s.db.ExecContext(ctx, query, s.docKey, string(payload)); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", postgresNotifyChannel, s.docKey)
	return err
}

func (s *PostgresRemoteStore) fetch(ctx context.Context) (campaign.Document, bool, error) {
	if err := s.ensureReady(); err != nil {
		return campaign.Document{}, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT snapshot FROM %s WHERE doc_key = $1", pq.QuoteIdentifier(s.tableName))
	var payload string
	err := s.db.QueryRowContext(ctx, query, s.docKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Document{}, false, nil
	}
	if err != nil {
		return campaign.Document{}, false, err
	}
	doc, err := campaign.DecodeDocument([]byte(payload))
	if err != nil {
		return campaign.Document{}, false, err
	}
	return doc, true, nil
}

// Subscribe delivers the current row, then a fresh fetch after every NOTIFY
// on the document channel. Listener reconnects are handled by pq; the poll
// ticker covers notifications lost while disconnected.
func (s *PostgresRemoteStore) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	listener := pq.NewListener(s.dsn, postgresMinReconnect, postgresMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				s.logf("postgres listener event %d: %v", ev, err)
			}
		})
	if err := listener.Listen(postgresNotifyChannel); err != nil {
		_ = listener.Close()
		return nil, err
	}

	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		defer listener.Close()

		emit := func() {
			doc, exists, err := s.fetch(ctx)
			snap := Snapshot{Doc: doc, Exists: exists, Err: err}
			select {
			case out <- snap:
			case <-ctx.Done():
			}
		}

		emit()
		ticker := time.NewTicker(postgresPollFallback)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// A nil notification marks a reconnect; re-fetch either way.
				if n != nil && n.Extra != s.docKey {
					continue
				}
				emit()
			case <-ticker.C:
				if err := listener.Ping(); err != nil {
					s.logf("postgres listener ping: %v", err)
				}
				emit()
			}
		}
	}()
	return out, nil
}

func (s *PostgresRemoteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresRemoteStore) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
