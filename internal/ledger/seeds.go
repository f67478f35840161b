// Package ledger implements the CSV sinks and sources around the scrape
// engine: the seed-URL table, the append-only master record log, and the
// per-municipality status table.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/scrape"
)

// ReadSeeds loads the discovered-URLs CSV produced by the URL finder. A
// missing file is not an error; there is simply nothing to crawl yet.
func ReadSeeds(path string) ([]scrape.Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open seeds csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read seeds csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := headerIndex(rows[0])
	seeds := make([]scrape.Seed, 0, len(rows)-1)
	for _, row := range rows[1:] {
		seeds = append(seeds, scrape.Seed{
			CSDID:      field(row, col, "census_subdivision_id"),
			Name:       field(row, col, "municipality_name"),
			Type:       field(row, col, "type"),
			ProvinceID: field(row, col, "province_id"),
			Province:   field(row, col, "province"),
			PageURL:    field(row, col, "page_url"),
		})
	}
	return seeds, nil
}

// SeedFilter narrows which seed rows feed the engine.
type SeedFilter struct {
	CSD             string
	Municipality    string
	RetryFailed     bool
	RetryIncomplete bool
	Limit           int
}

// FilterSeeds applies a SeedFilter. The retry filters consult existing
// status rows; seeds with no status row yet always pass them.
func FilterSeeds(seeds []scrape.Seed, filter SeedFilter, statuses map[StatusKey]StatusRow) []scrape.Seed {
	out := make([]scrape.Seed, 0, len(seeds))

	for _, seed := range seeds {
		if filter.CSD != "" && seed.CSDID != filter.CSD {
			continue
		}
		if filter.Municipality != "" &&
			!strings.Contains(strings.ToLower(seed.Name), strings.ToLower(filter.Municipality)) {
			continue
		}

		if filter.RetryFailed || filter.RetryIncomplete {
			row, processed := statuses[StatusKey{CSDID: seed.CSDID, Type: seed.Type}]
			switch {
			case !processed:
				// Never processed; always eligible.
			case filter.RetryFailed && row.Status == scrape.StatusFail:
			case filter.RetryIncomplete && row.NeedsReparse == "YES":
			default:
				continue
			}
		}

		out = append(out, seed)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// headerIndex maps lowercased header names to column positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
