// Package refdata loads the municipality reference CSVs (municipalities,
// municipal status codes, province codes) and answers identity lookups.
package refdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config locates the three reference CSV files.
type Config struct {
	MunicipalitiesCSV string `mapstructure:"municipalities_csv"`
	StatusCodesCSV    string `mapstructure:"status_codes_csv"`
	ProvinceCodesCSV  string `mapstructure:"province_codes_csv"`
}

// Municipality is one reference row with code lookups resolved.
type Municipality struct {
	CSDID      string
	Name       string
	StatusCode string
	StatusName string
	ProvinceID string
	Province   string
	Population int
}

// SERPQuery builds the search query used by the URL finder for this
// municipality.
func (m Municipality) SERPQuery(suffix string) string {
	return fmt.Sprintf("%s %s %s %s", m.Name, m.StatusName, m.Province, suffix)
}

// Lookup answers municipality identity queries. Construct one explicitly
// and pass it where needed; the CSVs are read once on first use.
type Lookup struct {
	cfg Config

	once    sync.Once
	loadErr error

	byCSD         map[string]Municipality
	byName        map[string][]Municipality
	all           []Municipality
	statusNames   map[string]string
	provinceNames map[string]string
}

// New returns an unloaded Lookup; files are read lazily on first query.
func New(cfg Config) *Lookup {
	return &Lookup{cfg: cfg}
}

// ByCSD returns the municipality for a census subdivision ID.
func (l *Lookup) ByCSD(id string) (Municipality, bool) {
	if l.ensure() != nil {
		return Municipality{}, false
	}
	m, ok := l.byCSD[id]
	return m, ok
}

// ByName returns every municipality with the given name; names repeat
// across provinces.
func (l *Lookup) ByName(name string) []Municipality {
	if l.ensure() != nil {
		return nil
	}
	return l.byName[name]
}

// ByProvince returns every municipality in a province.
func (l *Lookup) ByProvince(provinceID string) []Municipality {
	if l.ensure() != nil {
		return nil
	}
	var out []Municipality
	for _, m := range l.all {
		if m.ProvinceID == provinceID {
			out = append(out, m)
		}
	}
	return out
}

// All returns every municipality, or the load error.
func (l *Lookup) All() ([]Municipality, error) {
	if err := l.ensure(); err != nil {
		return nil, err
	}
	return l.all, nil
}

// StatusName resolves a municipal status code; unknown codes pass through.
func (l *Lookup) StatusName(code string) string {
	if l.ensure() != nil {
		return code
	}
	if name, ok := l.statusNames[code]; ok {
		return name
	}
	return code
}

// ProvinceName resolves a PR_UID; unknown IDs pass through.
func (l *Lookup) ProvinceName(id string) string {
	if l.ensure() != nil {
		return id
	}
	if name, ok := l.provinceNames[id]; ok {
		return name
	}
	return id
}

func (l *Lookup) ensure() error {
	l.once.Do(func() {
		l.loadErr = l.load()
	})
	return l.loadErr
}

func (l *Lookup) load() error {
	var err error
	l.statusNames, err = readCodeTable(l.cfg.StatusCodesCSV, "code", "name")
	if err != nil {
		return fmt.Errorf("load status codes: %w", err)
	}
	l.provinceNames, err = readCodeTable(l.cfg.ProvinceCodesCSV, "id", "province")
	if err != nil {
		return fmt.Errorf("load province codes: %w", err)
	}

	rows, header, err := readTable(l.cfg.MunicipalitiesCSV)
	if err != nil {
		return fmt.Errorf("load municipalities: %w", err)
	}

	l.byCSD = make(map[string]Municipality, len(rows))
	l.byName = make(map[string][]Municipality)
	l.all = make([]Municipality, 0, len(rows))

	for _, row := range rows {
		statusCode := cell(row, header, "municipal_status")
		provinceID := cell(row, header, "PR_UID")
		population, _ := strconv.Atoi(cell(row, header, "pop"))

		m := Municipality{
			CSDID:      cell(row, header, "region"),
			Name:       cell(row, header, "name"),
			StatusCode: statusCode,
			StatusName: l.statusNames[statusCode],
			ProvinceID: provinceID,
			Province:   l.provinceNames[provinceID],
			Population: population,
		}
		if m.StatusName == "" {
			m.StatusName = statusCode
		}
		if m.Province == "" {
			m.Province = provinceID
		}
		if m.CSDID == "" {
			continue
		}

		l.all = append(l.all, m)
		l.byCSD[m.CSDID] = m
		if m.Name != "" {
			l.byName[m.Name] = append(l.byName[m.Name], m)
		}
	}
	return nil
}

func readTable(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, map[string]int{}, nil
	}

	header := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		header[strings.TrimSpace(h)] = i
	}
	return records[1:], header, nil
}

func readCodeTable(path, keyCol, valueCol string) (map[string]string, error) {
	rows, header, err := readTable(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		key := cell(row, header, keyCol)
		if key == "" {
			continue
		}
		out[key] = cell(row, header, valueCol)
	}
	return out, nil
}

func cell(row []string, header map[string]int, name string) string {
	i, ok := header[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
