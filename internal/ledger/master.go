package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/scrape"
)

var masterHeader = []string{
	"census_subdivision_id", "municipality", "province_id", "province",
	"type", "year", "source_page_url", "document_url", "document_path",
}

// MasterCSV is the append-only log of successful downloads. Rows are never
// mutated once written; downstream dedup is by on-disk filename presence,
// not ledger content.
type MasterCSV struct {
	path string
	mu   sync.Mutex
}

// NewMasterCSV returns a writer for the master ledger at path. The file is
// created with a header row on first append.
func NewMasterCSV(path string) *MasterCSV {
	return &MasterCSV{path: path}
}

// Append writes one provenance row.
func (m *MasterCSV) Append(_ context.Context, rec scrape.MasterRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	writeHeader := true
	if info, err := os.Stat(m.path); err == nil && info.Size() > 0 {
		writeHeader = false
	}

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open master csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(masterHeader); err != nil {
			return fmt.Errorf("write master header: %w", err)
		}
	}

	year := ""
	if rec.Year != 0 {
		year = strconv.Itoa(rec.Year)
	}
	row := []string{
		rec.CSDID, rec.Municipality, rec.ProvinceID, rec.Province,
		rec.Type, year, rec.SourcePageURL, rec.DocumentURL, rec.DocumentPath,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write master row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush master csv: %w", err)
	}
	return nil
}
