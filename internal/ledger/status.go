package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/scrape"
)

const statusTimeFormat = "2006-01-02 15:04:05"

var statusHeader = []string{
	"census_subdivision_id", "municipality_name", "type", "province_id", "province", "status",
	"downloaded", "found", "years", "needs_reparse", "notes", "last_updated", "page_url",
}

// StatusKey identifies one status row.
type StatusKey struct {
	CSDID string
	Type  string
}

// StatusRow is one raw row of the status table, as stored.
type StatusRow struct {
	CSDID        string
	Municipality string
	Type         string
	ProvinceID   string
	Province     string
	Status       string
	Downloaded   string
	Found        string
	Years        string
	NeedsReparse string
	Notes        string
	LastUpdated  string
	PageURL      string
}

// StatusCSV upserts per-municipality status rows keyed by (csd, type). The
// whole table is rewritten on every upsert, so concurrent writers against
// the same file must be externally serialized.
type StatusCSV struct {
	path string
	mu   sync.Mutex
}

// NewStatusCSV returns a status table backed by the file at path.
func NewStatusCSV(path string) *StatusCSV {
	return &StatusCSV{path: path}
}

// Upsert replaces or adds the row for rec's (csd, type) key.
func (s *StatusCSV) Upsert(_ context.Context, rec scrape.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := LoadStatus(s.path)
	if err != nil {
		return err
	}

	needsReparse := "NO"
	if rec.NeedsReparse {
		needsReparse = "YES"
	}
	rows[StatusKey{CSDID: rec.CSDID, Type: rec.Type}] = StatusRow{
		CSDID:        rec.CSDID,
		Municipality: rec.Municipality,
		Type:         rec.Type,
		ProvinceID:   rec.ProvinceID,
		Province:     rec.Province,
		Status:       rec.Status,
		Downloaded:   strconv.Itoa(rec.Downloaded),
		Found:        strconv.Itoa(rec.Found),
		Years:        strconv.Itoa(rec.Years),
		NeedsReparse: needsReparse,
		Notes:        rec.Notes,
		LastUpdated:  rec.LastUpdated.Format(statusTimeFormat),
		PageURL:      rec.PageURL,
	}

	return s.writeAll(rows)
}

// LoadStatus reads the status table into a map keyed by (csd, type). A
// missing file yields an empty map.
func LoadStatus(path string) (map[StatusKey]StatusRow, error) {
	rows := make(map[StatusKey]StatusRow)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rows, nil
		}
		return nil, fmt.Errorf("open status csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read status csv: %w", err)
	}
	if len(records) == 0 {
		return rows, nil
	}

	col := headerIndex(records[0])
	for _, record := range records[1:] {
		row := StatusRow{
			CSDID:        field(record, col, "census_subdivision_id"),
			Municipality: field(record, col, "municipality_name"),
			Type:         field(record, col, "type"),
			ProvinceID:   field(record, col, "province_id"),
			Province:     field(record, col, "province"),
			Status:       field(record, col, "status"),
			Downloaded:   field(record, col, "downloaded"),
			Found:        field(record, col, "found"),
			Years:        field(record, col, "years"),
			NeedsReparse: field(record, col, "needs_reparse"),
			Notes:        field(record, col, "notes"),
			LastUpdated:  field(record, col, "last_updated"),
			PageURL:      field(record, col, "page_url"),
		}
		if row.CSDID == "" {
			continue
		}
		rows[StatusKey{CSDID: row.CSDID, Type: row.Type}] = row
	}
	return rows, nil
}

func (s *StatusCSV) writeAll(rows map[StatusKey]StatusRow) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open status csv for rewrite: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(statusHeader); err != nil {
		return fmt.Errorf("write status header: %w", err)
	}

	keys := make([]StatusKey, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CSDID != keys[j].CSDID {
			return keys[i].CSDID < keys[j].CSDID
		}
		return keys[i].Type < keys[j].Type
	})

	for _, k := range keys {
		row := rows[k]
		record := []string{
			row.CSDID, row.Municipality, row.Type, row.ProvinceID, row.Province, row.Status,
			row.Downloaded, row.Found, row.Years, row.NeedsReparse, row.Notes, row.LastUpdated, row.PageURL,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write status row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush status csv: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ scrape.MasterWriter = (*MasterCSV)(nil)
	_ scrape.StatusWriter = (*StatusCSV)(nil)
)
