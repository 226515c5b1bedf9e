package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campkeeper/campkeeper/internal/blobstore"
	"github.com/campkeeper/campkeeper/internal/campaign"
)

// Activity feed icons, one per event family.
const (
	iconEncounter = "⚡"
	iconCombatant = "👹"
	iconImport    = "📥"
	iconExport    = "💾"
	iconFile      = "📎"
	iconCharacter = "🧙"
)

type LocalConfig struct {
	Store *campaign.Store
	Blobs *blobstore.Store
	// SyncState reports the reconciler's connectivity state, or "" when the
	// daemon runs without a remote.
	SyncState    func() string
	Logger       campaign.Logger
	MaxBodyBytes int64
}

// LocalServer is the API the browser UI talks to on loopback. No auth: it
// binds to localhost and trusts its caller, the same way the document file on
// disk does.
type LocalServer struct {
	cfg LocalConfig
}

func NewLocalServer(cfg LocalConfig) (*LocalServer, error) {
	if cfg.Store == nil {
		return nil, campaign.ErrInvalidInput
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	return &LocalServer{cfg: cfg}, nil
}

func (s *LocalServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case path == "/v1/status" && r.Method == http.MethodGet:
		s.handleStatus(w, r)
	case path == "/v1/document" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Store.Get())
	case path == "/v1/document" && r.Method == http.MethodPut:
		s.handlePutDocument(w, r)
	case path == "/v1/characters" && r.Method == http.MethodPost:
		s.handleAddCharacter(w, r)
	case strings.HasPrefix(path, "/v1/encounter/"):
		s.routeEncounter(w, r, strings.TrimPrefix(path, "/v1/encounter/"))
	case path == "/v1/files" && r.Method == http.MethodGet:
		s.handleListFiles(w, r)
	case path == "/v1/files" && r.Method == http.MethodPost:
		s.handleUploadFile(w, r)
	case strings.HasPrefix(path, "/v1/files/"):
		s.routeFile(w, r, strings.TrimPrefix(path, "/v1/files/"))
	case path == "/v1/export" && r.Method == http.MethodGet:
		s.handleExport(w, r)
	case path == "/v1/import" && r.Method == http.MethodPost:
		s.handleImport(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *LocalServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := ""
	if s.cfg.SyncState != nil {
		state = s.cfg.SyncState()
	}
	fileCount := 0
	if s.cfg.Blobs != nil {
		if n, err := s.cfg.Blobs.Count(r.Context()); err == nil {
			fileCount = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sync":      state,
		"storage":   s.cfg.Store.StorageInfo(),
		"fileCount": fileCount,
	})
}

func (s *LocalServer) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	doc, err := campaign.DecodeDocument(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body is not a campaign document")
		return
	}
	if !s.cfg.Store.Save(doc) {
		writeError(w, http.StatusInternalServerError, "save_failed", "document was not persisted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *LocalServer) handleAddCharacter(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var ch campaign.Character
	if err := json.Unmarshal(body, &ch); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid character payload")
		return
	}
	if err := campaign.ValidateCharacter(ch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if ch.ID == 0 {
		ch.ID = campaign.NewEntityID()
	}
	if ch.CreatedAt == "" {
		ch.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	doc, err := s.cfg.Store.Transact(func(doc *campaign.Document) error {
		doc.Characters = append(doc.Characters, ch)
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", "character was not persisted")
		return
	}
	s.cfg.Store.AddActivity(iconCharacter, "Added "+ch.Name+" to the roster")
	writeJSON(w, http.StatusCreated, doc)
}

func (s *LocalServer) routeEncounter(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	switch {
	case rest == "populate" && r.Method == http.MethodPost:
		s.encounterOp(w, func(doc *campaign.Document) error {
			doc.PopulateEncounter()
			return nil
		}, iconEncounter, "Encounter assembled from the roster")
	case rest == "sort" && r.Method == http.MethodPost:
		s.encounterOp(w, func(doc *campaign.Document) error {
			doc.SortByInitiative()
			return nil
		}, "", "")
	case rest == "next-turn" && r.Method == http.MethodPost:
		s.encounterOp(w, func(doc *campaign.Document) error {
			doc.NextTurn()
			return nil
		}, "", "")
	case rest == "clear" && r.Method == http.MethodPost:
		s.encounterOp(w, func(doc *campaign.Document) error {
			doc.ClearEncounter()
			return nil
		}, iconEncounter, "Encounter cleared")
	case rest == "toggle-pc" && r.Method == http.MethodPost:
		s.handleToggle(w, r, true)
	case rest == "toggle-npc" && r.Method == http.MethodPost:
		s.handleToggle(w, r, false)
	case rest == "combatants" && r.Method == http.MethodPost:
		s.handleAddCombatant(w, r)
	case len(parts) == 2 && parts[0] == "combatants" && r.Method == http.MethodDelete:
		s.handleRemoveCombatant(w, parts[1])
	case len(parts) == 3 && parts[0] == "combatants" && parts[2] == "initiative" && r.Method == http.MethodPost:
		s.handleSetInitiative(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "combatants" && parts[2] == "hp" && r.Method == http.MethodPost:
		s.handleAdjustHP(w, r, parts[1])
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

// encounterOp wraps the load-mutate-save cycle shared by the simple encounter
// endpoints and responds with the updated document.
func (s *LocalServer) encounterOp(w http.ResponseWriter, fn func(*campaign.Document) error, icon, activity string) {
	doc, err := s.cfg.Store.Transact(fn)
	if err != nil {
		if errors.Is(err, campaign.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		if errors.Is(err, campaign.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "save_failed", "encounter change was not persisted")
		return
	}
	if activity != "" {
		s.cfg.Store.AddActivity(icon, activity)
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *LocalServer) handleToggle(w http.ResponseWriter, r *http.Request, pc bool) {
	var req struct {
		ID int64 `json:"id"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.encounterOp(w, func(doc *campaign.Document) error {
		if pc {
			doc.TogglePCInEncounter(req.ID)
		} else {
			doc.ToggleNPCInEncounter(req.ID)
		}
		return nil
	}, "", "")
}

func (s *LocalServer) handleAddCombatant(w http.ResponseWriter, r *http.Request) {
	var c campaign.Combatant
	if !s.decodeBody(w, r, &c) {
		return
	}
	if strings.TrimSpace(c.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "combatant name is required")
		return
	}
	s.encounterOp(w, func(doc *campaign.Document) error {
		doc.AddCombatant(c)
		return nil
	}, iconCombatant, c.Name+" joined the encounter")
}

func (s *LocalServer) handleRemoveCombatant(w http.ResponseWriter, id string) {
	s.encounterOp(w, func(doc *campaign.Document) error {
		if !doc.RemoveCombatant(id) {
			return campaign.ErrNotFound
		}
		return nil
	}, "", "")
}

func (s *LocalServer) handleSetInitiative(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Initiative campaign.Initiative `json:"initiative"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.encounterOp(w, func(doc *campaign.Document) error {
		if !doc.SetInitiative(id, req.Initiative) {
			return campaign.ErrNotFound
		}
		return nil
	}, "", "")
}

func (s *LocalServer) handleAdjustHP(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Delta int `json:"delta"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.encounterOp(w, func(doc *campaign.Document) error {
		if !doc.AdjustHP(id, req.Delta) {
			return campaign.ErrNotFound
		}
		return nil
	}, "", "")
}

func (s *LocalServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Blobs == nil {
		writeJSON(w, http.StatusOK, []blobstore.Record{})
		return
	}
	records, err := s.cfg.Blobs.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to list files")
		return
	}
	// Payloads stay out of listings; fetch one record for its data.
	for i := range records {
		records[i].Data = ""
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *LocalServer) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Blobs == nil {
		writeError(w, http.StatusNotImplemented, "no_blob_store", "file storage is not configured")
		return
	}
	var rec blobstore.Record
	if !s.decodeBody(w, r, &rec) {
		return
	}
	if rec.Name == "" || rec.Data == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "file name and data are required")
		return
	}
	if rec.ID == 0 {
		rec.ID = campaign.NewEntityID()
	}
	if rec.UploadedAt == "" {
		rec.UploadedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.cfg.Blobs.Put(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to store file")
		return
	}
	ref := campaign.FileRef{
		ID:         rec.ID,
		Name:       rec.Name,
		Size:       rec.Size,
		RawSize:    rec.RawSize,
		Type:       rec.Type,
		UploadedAt: rec.UploadedAt,
	}
	if _, err := s.cfg.Store.Transact(func(doc *campaign.Document) error {
		for _, f := range doc.Files {
			if f.ID == ref.ID {
				return nil
			}
		}
		doc.Files = append(doc.Files, ref)
		return nil
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", "file reference was not persisted")
		return
	}
	s.cfg.Store.AddActivity(iconFile, "Uploaded "+rec.Name)
	writeJSON(w, http.StatusCreated, ref)
}

func (s *LocalServer) routeFile(w http.ResponseWriter, r *http.Request, rest string) {
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "file id must be numeric")
		return
	}
	if s.cfg.Blobs == nil {
		writeError(w, http.StatusNotImplemented, "no_blob_store", "file storage is not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := s.cfg.Blobs.Get(r.Context(), id)
		if errors.Is(err, blobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no such file")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage_error", "failed to read file")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := s.cfg.Blobs.Delete(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "storage_error", "failed to delete file")
			return
		}
		if _, err := s.cfg.Store.Transact(func(doc *campaign.Document) error {
			for i, f := range doc.Files {
				if f.ID == id {
					doc.Files = append(doc.Files[:i], doc.Files[i+1:]...)
					break
				}
			}
			return nil
		}); err != nil {
			writeError(w, http.StatusInternalServerError, "save_failed", "file reference was not removed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method for route")
	}
}

func (s *LocalServer) handleExport(w http.ResponseWriter, r *http.Request) {
	exportType := r.URL.Query().Get("type")
	if exportType == "" {
		exportType = campaign.ExportFull
	}
	if exportType != campaign.ExportFull && exportType != campaign.ExportPlayer {
		writeError(w, http.StatusBadRequest, "invalid_input", "type must be full or player")
		return
	}
	doc := s.cfg.Store.Get()
	var blobs []blobstore.Record
	if s.cfg.Blobs != nil {
		all, err := s.cfg.Blobs.All(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage_error", "failed to read files for export")
			return
		}
		blobs = all
	}
	var (
		bundle campaign.Bundle
		err    error
	)
	if exportType == campaign.ExportFull {
		bundle, err = campaign.NewFullBundle(doc, blobs, time.Now())
	} else {
		bundle, err = campaign.NewPlayerBundle(doc, blobs, time.Now())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export_failed", "failed to build bundle")
		return
	}
	s.cfg.Store.AddActivity(iconExport, "Exported "+exportType+" campaign bundle")
	writeJSON(w, http.StatusOK, bundle)
}

func (s *LocalServer) handleImport(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	bundle, err := campaign.ParseBundle(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bundle", err.Error())
		return
	}
	local := s.cfg.Store.Get()
	merged, err := campaign.MergeBundle(local, bundle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bundle", err.Error())
		return
	}
	if !s.cfg.Store.Save(merged) {
		writeError(w, http.StatusInternalServerError, "save_failed", "merged document was not persisted")
		return
	}
	if s.cfg.Blobs != nil {
		for _, rec := range bundle.FileBlobs {
			if _, err := s.cfg.Blobs.Get(r.Context(), rec.ID); err == nil {
				continue
			}
			if err := s.cfg.Blobs.Put(r.Context(), rec); err != nil {
				s.logf("error importing file blob %d: %v", rec.ID, err)
			}
		}
	}
	s.cfg.Store.AddActivity(iconImport, "Imported "+bundle.ExportType+" campaign bundle")
	writeJSON(w, http.StatusOK, merged)
}

func (s *LocalServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

func (s *LocalServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := s.readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

func (s *LocalServer) logf(format string, args ...any) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Printf(format, args...)
}
