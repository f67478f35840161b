package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// httpFetcher is a plain net/http Fetcher for end-to-end tests; the colly
// fetcher needs real DNS while httptest serves loopback URLs directly.
type httpFetcher struct{}

func (httpFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, err
	}
	return Page{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// stubFetcher serves canned pages and records every fetch.
type stubFetcher struct {
	pages   map[string]string
	fetched []string
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	s.fetched = append(s.fetched, rawURL)
	body, ok := s.pages[rawURL]
	if !ok {
		return Page{}, errors.New("no such page")
	}
	return Page{URL: rawURL, Body: []byte(body)}, nil
}

type memMaster struct{ rows []MasterRecord }

func (m *memMaster) Append(_ context.Context, rec MasterRecord) error {
	m.rows = append(m.rows, rec)
	return nil
}

type memStatus struct{ rows []StatusRecord }

func (m *memStatus) Upsert(_ context.Context, rec StatusRecord) error {
	m.rows = append(m.rows, rec)
	return nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.June, 1, 12, 0, 0, 0, time.UTC)
	}
}

func newTestEngine(t *testing.T, lakeDir string, fetcher Fetcher, master *memMaster, status *memStatus) *Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	downloader := NewHTTPDownloader(5*time.Second, "test-agent", logger)
	return NewEngine(EngineConfig{LakeDir: lakeDir}, fetcher, downloader, master, status, nil, logger).
		WithClock(fixedClock(2026))
}

func reportSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/finance", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<html><body>
			<a href="/files/annual-report-2023.pdf">2023 Annual Report</a>
			<a href="/files/annual-report-2023-draft.pdf">2023 Annual Report DRAFT</a>
			<a href="/files/budget-2022.pdf">2022 Budget</a>
		</body></html>`)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = fmt.Fprintf(w, "%%PDF body of %s", r.URL.Path)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestProcessMunicipalityEndToEnd(t *testing.T) {
	server := reportSite(t)
	lake := t.TempDir()
	master := &memMaster{}

	engine := newTestEngine(t, lake, httpFetcher{}, master, &memStatus{})
	seed := Seed{
		CSDID:      "5915022",
		Name:       "Vancouver",
		Type:       "City",
		ProvinceID: "59",
		Province:   "British Columbia",
		PageURL:    server.URL + "/finance",
	}

	res, err := engine.ProcessMunicipality(context.Background(), seed)
	require.NoError(t, err)

	// The budget link is rejected by the relevance gate; the draft and the
	// final annual report both survive as candidates, and the final one
	// wins 2023.
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Downloads)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 1, res.Years)

	saved := filepath.Join(lake, "59", "5915022", "financial_statement_2023.pdf")
	body, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Contains(t, string(body), "annual-report-2023.pdf")
	assert.NotContains(t, string(body), "draft")

	require.Len(t, master.rows, 1)
	rec := master.rows[0]
	assert.Equal(t, "5915022", rec.CSDID)
	assert.Equal(t, 2023, rec.Year)
	assert.Equal(t, server.URL+"/files/annual-report-2023.pdf", rec.DocumentURL)
	assert.Equal(t, saved, rec.DocumentPath)
	assert.Equal(t, server.URL+"/finance", rec.SourcePageURL)
}

func TestProcessMunicipalityIdempotent(t *testing.T) {
	server := reportSite(t)
	lake := t.TempDir()
	master := &memMaster{}
	status := &memStatus{}

	engine := newTestEngine(t, lake, httpFetcher{}, master, status)
	seeds := []Seed{{
		CSDID:      "5915022",
		Name:       "Vancouver",
		Type:       "City",
		ProvinceID: "59",
		Province:   "British Columbia",
		PageURL:    server.URL + "/finance",
	}}

	_, err := engine.Run(context.Background(), seeds)
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), seeds)
	require.NoError(t, err)

	// Second run finds the file on disk and downloads nothing new, but is
	// still a success and reports the same on-disk count.
	require.Len(t, master.rows, 1)
	require.Len(t, status.rows, 2)
	assert.Equal(t, StatusOK, status.rows[1].Status)
	assert.Equal(t, 1, status.rows[0].Downloaded)
	assert.Equal(t, 1, status.rows[1].Downloaded)
}

func TestProcessMunicipalityCurrentYearExcluded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/finance", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<a href="/files/annual-report-2026.pdf">2026 Annual Report</a>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	lake := t.TempDir()
	master := &memMaster{}
	engine := newTestEngine(t, lake, httpFetcher{}, master, &memStatus{})

	res, err := engine.ProcessMunicipality(context.Background(), Seed{
		CSDID: "1", ProvinceID: "59", PageURL: server.URL + "/finance",
	})
	require.NoError(t, err)

	// Found but never selected: an annual report for the current year
	// cannot exist yet.
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 0, res.Years)
	assert.Equal(t, 0, res.Downloads)
	assert.Empty(t, master.rows)
}

func TestProcessMunicipalityUnknownYearUpgrade(t *testing.T) {
	const pageURL = "https://town.example.com/finance"
	fetcher := &stubFetcher{pages: map[string]string{
		pageURL: `<a href="/files/statements.pdf">Audited Financial Statements</a>`,
	}}
	downloader := &fakeDownloader{original: "audited_statements_2019.pdf"}

	lake := t.TempDir()
	master := &memMaster{}
	engine := NewEngine(EngineConfig{LakeDir: lake}, fetcher, downloader, master, &memStatus{}, nil, zaptest.NewLogger(t)).
		WithClock(fixedClock(2026))

	res, err := engine.ProcessMunicipality(context.Background(), Seed{
		CSDID: "1", ProvinceID: "59", PageURL: pageURL,
	})
	require.NoError(t, err)

	require.Equal(t, 1, res.Downloads)
	require.Equal(t, []string{"https://town.example.com/files/statements.pdf"}, downloader.calls)

	// Saved under the placeholder name, then renamed once the
	// server-declared filename revealed the year.
	upgraded := filepath.Join(lake, "59", "1", "financial_statement_2019.pdf")
	_, err = os.Stat(upgraded)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(lake, "59", "1", UnknownFilename(1)))
	assert.True(t, os.IsNotExist(err))

	require.Len(t, master.rows, 1)
	assert.Equal(t, 2019, master.rows[0].Year)
	assert.Equal(t, upgraded, master.rows[0].DocumentPath)
}

func TestCollectLinksBoundsTraversal(t *testing.T) {
	const host = "https://docs.town.civicweb.net"
	pages := map[string]string{}
	for i := 1; i <= 10; i++ {
		pages[fmt.Sprintf("%s/filepro/documents/%d/", host, i)] = fmt.Sprintf(`<html><body>
			<div data-type="document" data-id="%d00" data-title="Annual Report %d"></div>
			<div data-type="folder" data-id="%d" data-title="Financial Reports %d"></div>
		</body></html>`, i, 2010+i, i+1, i+1)
	}

	fetcher := &stubFetcher{pages: pages}
	engine := newTestEngine(t, t.TempDir(), fetcher, &memMaster{}, &memStatus{})

	links := engine.collectLinks(context.Background(), host+"/filepro/documents/1/")

	// The folder chain is endless; the visited cap stops the crawl at five
	// pages, one document per page.
	assert.Len(t, fetcher.fetched, 5)
	assert.Len(t, links, 5)
}

func TestProcessMunicipalityNoPageURL(t *testing.T) {
	engine := newTestEngine(t, t.TempDir(), &stubFetcher{}, &memMaster{}, &memStatus{})
	res, err := engine.ProcessMunicipality(context.Background(), Seed{CSDID: "1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "no page url", res.Message)
}

func TestProcessMunicipalityFetchFailure(t *testing.T) {
	engine := newTestEngine(t, t.TempDir(), &stubFetcher{pages: map[string]string{}}, &memMaster{}, &memStatus{})
	res, err := engine.ProcessMunicipality(context.Background(), Seed{
		CSDID: "1", ProvinceID: "59", PageURL: "https://unreachable.example.com/finance",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Found)
}

func TestRunRecordsStatus(t *testing.T) {
	server := reportSite(t)
	status := &memStatus{}
	engine := newTestEngine(t, t.TempDir(), httpFetcher{}, &memMaster{}, status)

	seeds := []Seed{
		{CSDID: "5915022", Name: "Vancouver", Type: "City", ProvinceID: "59", Province: "British Columbia", PageURL: server.URL + "/finance"},
		{CSDID: "5915055", Name: "Nowhere", Type: "Village", ProvinceID: "59", Province: "British Columbia", PageURL: ""},
	}

	results, err := engine.Run(context.Background(), seeds)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, status.rows, 2)

	ok := status.rows[0]
	assert.Equal(t, StatusOK, ok.Status)
	assert.True(t, ok.NeedsReparse, "fewer than 5 years resolved")
	assert.Equal(t, "Low year count", ok.Notes)
	assert.Equal(t, 2, ok.Found)

	fail := status.rows[1]
	assert.Equal(t, StatusFail, fail.Status)
	assert.True(t, fail.NeedsReparse)
	assert.Equal(t, "no page url", fail.Notes)
}

func TestRunStatusWriteFailureAborts(t *testing.T) {
	server := reportSite(t)
	engine := NewEngine(
		EngineConfig{LakeDir: t.TempDir()},
		httpFetcher{},
		NewHTTPDownloader(5*time.Second, "test-agent", zaptest.NewLogger(t)),
		&memMaster{},
		failingStatus{},
		nil,
		zaptest.NewLogger(t),
	).WithClock(fixedClock(2026))

	seeds := []Seed{
		{CSDID: "1", ProvinceID: "59", PageURL: server.URL + "/finance"},
		{CSDID: "2", ProvinceID: "59", PageURL: server.URL + "/finance"},
	}
	results, err := engine.Run(context.Background(), seeds)
	assert.Error(t, err)
	assert.Len(t, results, 1)
}

type failingStatus struct{}

func (failingStatus) Upsert(context.Context, StatusRecord) error {
	return errors.New("disk full")
}

// A download with no provenance row must never pass silently, so a master
// ledger write failure terminates the run instead of logging and moving on.
func TestRunAbortsOnMasterWriteFailure(t *testing.T) {
	server := reportSite(t)
	seed := Seed{CSDID: "5915022", ProvinceID: "59", PageURL: server.URL + "/finance"}

	newEngine := func(master MasterWriter, status StatusWriter) *Engine {
		return NewEngine(
			EngineConfig{LakeDir: t.TempDir()},
			httpFetcher{},
			NewHTTPDownloader(5*time.Second, "test-agent", zaptest.NewLogger(t)),
			master,
			status,
			nil,
			zaptest.NewLogger(t),
		).WithClock(fixedClock(2026))
	}

	master := &failingMaster{}
	res, err := newEngine(master, &memStatus{}).ProcessMunicipality(context.Background(), seed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, res.Success)
	assert.Equal(t, 1, master.calls)

	status := &memStatus{}
	results, err := newEngine(&failingMaster{}, status).Run(context.Background(), []Seed{seed})
	assert.Error(t, err)
	assert.Empty(t, results)
	assert.Empty(t, status.rows, "run aborts before the status upsert")
}

type failingMaster struct{ calls int }

func (m *failingMaster) Append(context.Context, MasterRecord) error {
	m.calls++
	return errors.New("disk full")
}

func TestBackfillIdentity(t *testing.T) {
	lookup := stubLookup{"5915022": {
		CSDID:        "5915022",
		Name:         "Vancouver",
		StatusName:   "City",
		ProvinceID:   "59",
		ProvinceName: "British Columbia",
	}}
	engine := NewEngine(EngineConfig{LakeDir: t.TempDir()}, &stubFetcher{}, nil, &memMaster{}, &memStatus{}, lookup, zaptest.NewLogger(t))

	seed := Seed{CSDID: "5915022", Name: "Vancouver"}
	engine.backfillIdentity(&seed)

	assert.Equal(t, "59", seed.ProvinceID)
	assert.Equal(t, "British Columbia", seed.Province)
	assert.Equal(t, "City", seed.Type)

	unknown := Seed{CSDID: "999"}
	engine.backfillIdentity(&unknown)
	assert.Empty(t, unknown.Province)
}

// fakeDownloader records download calls and materializes dest so the
// rename step has a real file to work with.
type fakeDownloader struct {
	original string
	calls    []string
}

func (f *fakeDownloader) Download(_ context.Context, rawURL, dest string) DownloadResult {
	f.calls = append(f.calls, rawURL)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return DownloadResult{}
	}
	if err := os.WriteFile(dest, []byte("%PDF"), 0o600); err != nil {
		return DownloadResult{}
	}
	return DownloadResult{Success: true, OriginalFilename: f.original}
}

type stubLookup map[string]MunicipalityInfo

func (s stubLookup) ByCSD(id string) (MunicipalityInfo, bool) {
	info, ok := s[id]
	return info, ok
}
