package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/client/repositories/items"
	"github.com/quillnotes/quill/internal/client/store"
	"github.com/quillnotes/quill/internal/common"
)

// exportVersion tags the export file format.
const exportVersion = 1

// ExportFile is the JSON backup format: the items exactly as stored,
// ciphertext included. Decrypting a restored backup requires the same
// account key the items were encrypted under.
type ExportFile struct {
	Version int               `json:"version"`
	Items   []models.Envelope `json:"items"`
}

// ExportService writes and restores encrypted item backups. Payloads
// stay encrypted end to end; an export is useless without the account
// passphrase.
type ExportService struct {
	store *store.Store
}

func NewExportService(st *store.Store) *ExportService {
	return &ExportService{store: st}
}

// Export writes all live items to w as JSON. Tombstones are excluded;
// unreadable items are included, since a future key may recover them.
func (s *ExportService) Export(ctx context.Context, w io.Writer) (int, error) {
	all, err := s.store.List(ctx, items.ListFilter{})
	if err != nil {
		return 0, err
	}

	file := ExportFile{Version: exportVersion, Items: make([]models.Envelope, 0, len(all))}
	for i := range all {
		file.Items = append(file.Items, all[i].Envelope())
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(file.Items), nil
}

// Import merges items from an export file into the store. Imported
// items are saved as local mutations, so they upload on the next sync.
// An item already present locally is only overwritten when the import
// carries a newer updated_at.
func (s *ExportService) Import(ctx context.Context, r io.Reader) (int, error) {
	var file ExportFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("read export: %w", err)
	}
	if file.Version != exportVersion {
		return 0, fmt.Errorf("unsupported export version %d", file.Version)
	}

	imported := 0
	for _, env := range file.Items {
		if env.Deleted {
			continue
		}

		existing, err := s.store.Get(ctx, env.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return imported, err
		}
		if existing != nil && existing.UpdatedAt >= env.UpdatedAt {
			continue
		}

		item := models.ItemFromEnvelope(env)
		item.UpdatedAt = models.Now()
		if err := s.store.SaveLocal(ctx, item); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
