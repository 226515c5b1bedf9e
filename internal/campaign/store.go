package campaign

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Backend persists the serialized document. Load returns (nil, nil) when no
// document has been saved yet; decode failures are the store's problem, not
// the backend's.
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// JSONFileBackend keeps the document in a single JSON file, written atomically
// via a temp file and rename so a crash mid-save never corrupts the previous
// document.
type JSONFileBackend struct {
	Path string
}

func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileBackend) Load() ([]byte, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (b *JSONFileBackend) Save(data []byte) error {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(b.Path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// MemoryBackend holds the document in memory. Test and hub use.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func (b *MemoryBackend) Load() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBackend) Save(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	return nil
}

// Origin tags a save with where the change came from. Remote-origin saves
// never trigger an upstream push; that is the whole loop-suppression
// mechanism, made explicit instead of hidden in a process-wide flag.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

type Logger interface {
	Printf(format string, args ...any)
}

type StoreOptions struct {
	Backend Backend
	// Path builds a JSONFileBackend when Backend is nil.
	Path   string
	Logger Logger
	IDs    *IDGenerator
}

// Store owns the canonical document. Callers follow read-fresh/write-whole:
// Load before every mutation, Save the entire document after. Transact wraps
// the pattern so it cannot be forgotten.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	logger   Logger
	ids      *IDGenerator
	now      func() time.Time
	pusher   func(Document)
	renderer func()
	lastHash string
}

func NewStore(opts StoreOptions) *Store {
	backend := opts.Backend
	if backend == nil && strings.TrimSpace(opts.Path) != "" {
		backend = NewJSONFileBackend(opts.Path)
	}
	if backend == nil {
		backend = &MemoryBackend{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = defaultIDs
	}
	return &Store{
		backend: backend,
		logger:  opts.Logger,
		ids:     ids,
		now:     time.Now,
	}
}

// SetPusher registers the upstream push hook. It runs after every successful
// local-origin save, and never for remote-origin saves.
func (s *Store) SetPusher(fn func(Document)) {
	s.mu.Lock()
	s.pusher = fn
	s.mu.Unlock()
}

// SetRenderer registers the UI re-render hook, invoked after remote-applied
// updates and activity changes.
func (s *Store) SetRenderer(fn func()) {
	s.mu.Lock()
	s.renderer = fn
	s.mu.Unlock()
}

// Load reads the persisted document. A missing document yields the defaults
// template; a malformed one is logged and also yields defaults. Load never
// fails from the caller's point of view.
func (s *Store) Load() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() Document {
	data, err := s.backend.Load()
	if err != nil {
		s.logf("error reading saved document: %v", err)
		return DefaultDocument()
	}
	if data == nil {
		return DefaultDocument()
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		s.logf("error decoding saved document: %v", err)
		return DefaultDocument()
	}
	return doc
}

// Get is Load; callers re-fetch before every mutation rather than caching.
func (s *Store) Get() Document {
	return s.Load()
}

// Save persists a locally originated document. Returns false on failure
// without surfacing an error; the document on disk is untouched in that case.
func (s *Store) Save(doc Document) bool {
	return s.save(doc, OriginLocal)
}

// ApplyRemote persists a remote snapshot wholesale and triggers a re-render.
// No push follows: the change came from upstream.
func (s *Store) ApplyRemote(doc Document) bool {
	doc.Normalize()
	return s.save(doc, OriginRemote)
}

func (s *Store) save(doc Document, origin Origin) bool {
	data, err := json.Marshal(doc)
	if err != nil {
		s.logf("error serializing document: %v", err)
		return false
	}
	s.mu.Lock()
	if err := s.backend.Save(data); err != nil {
		s.mu.Unlock()
		s.logf("error saving document: %v", err)
		return false
	}
	s.lastHash = hashBytes(data)
	pusher := s.pusher
	renderer := s.renderer
	s.mu.Unlock()

	if origin == OriginLocal && pusher != nil {
		pusher(doc)
	}
	if origin == OriginRemote && renderer != nil {
		renderer()
	}
	return true
}

// Transact loads the document, applies fn, and saves the result. If fn
// returns an error nothing is persisted. The returned document is the state
// after the transaction.
func (s *Store) Transact(fn func(*Document) error) (Document, error) {
	doc := s.Load()
	if err := fn(&doc); err != nil {
		return doc, err
	}
	if !s.Save(doc) {
		return doc, ErrSaveFailed
	}
	return doc, nil
}

// AddActivity prepends a feed entry and truncates to the 50 most recent.
func (s *Store) AddActivity(icon, text string) {
	entry := ActivityEntry{
		ID:   s.ids.Next(),
		Icon: icon,
		Text: text,
		Time: s.now().UTC().Format(time.RFC3339),
	}
	if _, err := s.Transact(func(doc *Document) error {
		doc.Activity = append([]ActivityEntry{entry}, doc.Activity...)
		if len(doc.Activity) > maxActivityEntries {
			doc.Activity = doc.Activity[:maxActivityEntries]
		}
		return nil
	}); err != nil {
		s.logf("error recording activity: %v", err)
		return
	}
	s.mu.Lock()
	renderer := s.renderer
	s.mu.Unlock()
	if renderer != nil {
		renderer()
	}
}

const maxActivityEntries = 50

// LastSavedHash is the content hash of the most recent successful save. The
// document file watcher compares against it to tell our own writes from
// out-of-band edits.
func (s *Store) LastSavedHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// StorageInfo reports how large the persisted document is and is surfaced by
// the local status API.
type StorageInfo struct {
	DocumentBytes int64 `json:"documentBytes"`
}

func (s *Store) StorageInfo() StorageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.backend.Load()
	if err != nil || data == nil {
		return StorageInfo{}
	}
	return StorageInfo{DocumentBytes: int64(len(data))}
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashDocument returns the canonical content hash of a document, matching
// what LastSavedHash would report after saving it.
func HashDocument(doc Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return hashBytes(data), nil
}
