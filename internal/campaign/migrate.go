package campaign

import (
	"context"
	"fmt"

	"github.com/campkeeper/campkeeper/internal/blobstore"
)

// MigrateEmbeddedFiles moves file payloads still embedded in the document
// (documents written before the blob store existed) into blobs, then strips
// the inline data. Runs at startup; a document with no embedded payloads is
// untouched and nothing is saved.
func (s *Store) MigrateEmbeddedFiles(ctx context.Context, blobs *blobstore.Store) (int, error) {
	doc := s.Load()
	migrated := 0
	for i := range doc.Files {
		f := doc.Files[i]
		if f.Data == "" {
			continue
		}
		rec := blobstore.Record{
			ID:         f.ID,
			Name:       f.Name,
			Size:       f.Size,
			RawSize:    f.RawSize,
			Type:       f.Type,
			Data:       f.Data,
			UploadedAt: f.UploadedAt,
		}
		if err := blobs.Put(ctx, rec); err != nil {
			return migrated, fmt.Errorf("migrating file %d: %w", f.ID, err)
		}
		doc.Files[i].Data = ""
		migrated++
	}
	if migrated == 0 {
		return 0, nil
	}
	if !s.Save(doc) {
		return migrated, ErrSaveFailed
	}
	s.logf("migrated %d embedded file(s) to the blob store", migrated)
	return migrated, nil
}
