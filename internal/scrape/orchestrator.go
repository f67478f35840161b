package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/metrics"
)

// EngineConfig bounds one municipality run.
type EngineConfig struct {
	// LakeDir is the root of the download tree:
	// <LakeDir>/<provinceID>/<csdID>/financial_statement_<year>.pdf
	LakeDir string
	// MaxPages caps how many pages (seed plus sub-folders) are fetched.
	MaxPages int
	// MaxDownloads caps year-keyed downloads per run.
	MaxDownloads int
	// MaxUnknownYear caps downloads of documents with no resolvable year.
	MaxUnknownYear int
}

// Engine drives the discovery, selection, and download pipeline for one
// municipality at a time. Municipalities are processed strictly
// sequentially; the status ledger's read-modify-rewrite upsert is not safe
// under concurrent writers.
type Engine struct {
	cfg        EngineConfig
	fetcher    Fetcher
	downloader DocumentDownloader
	master     MasterWriter
	status     StatusWriter
	lookup     IdentityLookup
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine wires an Engine. lookup may be nil when no reference data is
// available; identity backfill is then skipped.
func NewEngine(
	cfg EngineConfig,
	fetcher Fetcher,
	downloader DocumentDownloader,
	master MasterWriter,
	status StatusWriter,
	lookup IdentityLookup,
	logger *zap.Logger,
) *Engine {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.MaxDownloads <= 0 {
		cfg.MaxDownloads = 50
	}
	if cfg.MaxUnknownYear <= 0 {
		cfg.MaxUnknownYear = 5
	}
	return &Engine{
		cfg:        cfg,
		fetcher:    fetcher,
		downloader: downloader,
		master:     master,
		status:     status,
		lookup:     lookup,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the engine's time source. Used by tests to pin the
// current-year cutoff.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run processes seeds in order, upserting a status row after each. A ledger
// write failure, master or status, aborts the run; per-municipality crawl
// and download failures do not.
func (e *Engine) Run(ctx context.Context, seeds []Seed) ([]RunResult, error) {
	results := make([]RunResult, 0, len(seeds))

	for i, seed := range seeds {
		runID := uuid.NewString()
		logger := e.logger.With(
			zap.String("run_id", runID),
			zap.String("csd_id", seed.CSDID),
			zap.String("municipality", seed.Name),
		)
		logger.Info("processing municipality",
			zap.Int("index", i+1),
			zap.Int("total", len(seeds)),
		)

		res, err := e.ProcessMunicipality(ctx, seed)
		if err != nil {
			return results, fmt.Errorf("process %s: %w", seed.CSDID, err)
		}
		results = append(results, res)

		status := StatusOK
		if !res.Success {
			status = StatusFail
		}
		metrics.ObserveMunicipality(status)

		if err := e.recordStatus(ctx, seed, res, status); err != nil {
			return results, fmt.Errorf("upsert status for %s: %w", seed.CSDID, err)
		}

		logger.Info("municipality done",
			zap.String("status", status),
			zap.Int("downloads", res.Downloads),
			zap.Int("found", res.Found),
			zap.Int("years", res.Years),
		)
	}

	return results, nil
}

// ProcessMunicipality crawls one municipality's report page, selects the
// best document per fiscal year, and downloads whatever is not already on
// disk. Re-running against an unchanged site is a no-op: the on-disk
// canonical filename is the sole dedup mechanism. A master ledger write
// failure is returned as an error; a download without a provenance row
// must never pass silently.
func (e *Engine) ProcessMunicipality(ctx context.Context, seed Seed) (RunResult, error) {
	e.backfillIdentity(&seed)

	pageURL := strings.TrimSpace(seed.PageURL)
	if pageURL == "" {
		return RunResult{Message: "no page url"}, nil
	}

	raw := e.collectLinks(ctx, pageURL)
	currentYear := e.now().Year()
	candidates := e.classifyLinks(raw, currentYear)
	metrics.ObserveCandidates(len(candidates))

	if len(candidates) == 0 {
		return RunResult{Message: "no annual reports found"}, nil
	}

	best := SelectBestPerYear(candidates, currentYear)
	dir := filepath.Join(e.cfg.LakeDir, seed.ProvinceID, seed.CSDID)
	downloads := 0

	years := make([]int, 0, len(best))
	for y := range best {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	if len(years) > e.cfg.MaxDownloads {
		years = years[:e.cfg.MaxDownloads]
	}

	for _, year := range years {
		doc := best[year]
		dest := filepath.Join(dir, CanonicalFilename(year))
		if fileExists(dest) {
			e.logger.Debug("skip existing", zap.String("path", dest))
			continue
		}

		res := e.downloader.Download(ctx, doc.URL, dest)
		if !res.Success {
			continue
		}
		downloads++

		if err := e.recordDownload(ctx, seed, pageURL, doc.URL, dest, year); err != nil {
			return RunResult{}, fmt.Errorf("append master record: %w", err)
		}
	}

	unknown, err := e.downloadUnknownYears(ctx, seed, pageURL, candidates, dir, currentYear)
	if err != nil {
		return RunResult{}, err
	}
	downloads += unknown

	return RunResult{
		Success:   downloads > 0 || len(candidates) > 0,
		Downloads: downloads,
		Found:     len(candidates),
		Years:     len(best),
		Message:   fmt.Sprintf("downloaded %d, found %d candidates across %d years", downloads, len(candidates), len(best)),
	}, nil
}

// collectLinks drains a frontier queue starting at the seed URL. Folder
// links are enqueued only while the visited count stays under MaxPages,
// bounding total fetches per municipality.
func (e *Engine) collectLinks(ctx context.Context, seedURL string) []Link {
	frontier := []string{seedURL}
	visited := make(map[string]struct{})
	var raw []Link

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}

		links := e.extractPage(ctx, current)
		e.logger.Debug("page extracted",
			zap.String("url", current),
			zap.Int("links", len(links)),
		)

		for _, link := range links {
			if link.IsFolder {
				if len(visited) < e.cfg.MaxPages {
					frontier = append(frontier, link.URL)
				}
				continue
			}
			raw = append(raw, link)
		}
	}

	return raw
}

// extractPage fetches and parses one page. Any transport or parse error
// degrades to zero links.
func (e *Engine) extractPage(ctx context.Context, pageURL string) []Link {
	page, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		e.logger.Warn("page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	return ExtractorFor(pageURL).Extract(page)
}

// classifyLinks filters document-looking links through the relevance gate
// and annotates survivors with kind, year, and draft status. The link text
// carries the report year; the URL is only a fallback since it often holds
// the upload date instead.
func (e *Engine) classifyLinks(raw []Link, currentYear int) []Candidate {
	var candidates []Candidate
	seen := make(map[string]struct{})

	for _, link := range raw {
		if !link.LooksLikeDocument {
			continue
		}
		if _, dup := seen[link.URL]; dup {
			continue
		}
		if !IsRelevantReport(link.Text, link.URL) {
			continue
		}
		seen[link.URL] = struct{}{}

		year := ExtractYear(link.Text, currentYear)
		if year == 0 {
			year = ExtractYear(link.URL, currentYear)
		}
		kind := ClassifyKind(link.Text, link.URL)
		draft := IsDraft(link.Text, link.URL)

		candidates = append(candidates, Candidate{
			Link:     link,
			Kind:     kind,
			Year:     year,
			Draft:    draft,
			Priority: PriorityFor(kind, draft),
		})
	}

	return candidates
}

// downloadUnknownYears handles candidates with no resolvable year: up to
// MaxUnknownYear of them are saved under sequential placeholder names, then
// upgraded to the canonical year name when the server-declared filename
// reveals one.
func (e *Engine) downloadUnknownYears(ctx context.Context, seed Seed, pageURL string, candidates []Candidate, dir string, currentYear int) (int, error) {
	downloads := 0
	slot := 0

	for _, doc := range candidates {
		if doc.Year != 0 {
			continue
		}
		slot++
		if slot > e.cfg.MaxUnknownYear {
			break
		}

		dest := filepath.Join(dir, UnknownFilename(slot))
		if fileExists(dest) {
			continue
		}

		res := e.downloader.Download(ctx, doc.URL, dest)
		if !res.Success {
			continue
		}
		downloads++

		year := 0
		if res.OriginalFilename != "" {
			if y := ExtractYear(res.OriginalFilename, currentYear); y != 0 {
				dest = Finalize(dest, y)
				year = y
			}
		}

		if err := e.recordDownload(ctx, seed, pageURL, doc.URL, dest, year); err != nil {
			return downloads, fmt.Errorf("append master record: %w", err)
		}
	}

	return downloads, nil
}

func (e *Engine) recordDownload(ctx context.Context, seed Seed, pageURL, docURL, path string, year int) error {
	return e.master.Append(ctx, MasterRecord{
		CSDID:         seed.CSDID,
		Municipality:  seed.Name,
		ProvinceID:    seed.ProvinceID,
		Province:      seed.Province,
		Type:          seed.Type,
		Year:          year,
		SourcePageURL: pageURL,
		DocumentURL:   docURL,
		DocumentPath:  path,
	})
}

func (e *Engine) recordStatus(ctx context.Context, seed Seed, res RunResult, status string) error {
	notes := ""
	if !res.Success {
		notes = res.Message
	}
	needsReparse := status == StatusFail || res.Years < 5
	if notes == "" && status == StatusOK && res.Years < 5 {
		notes = "Low year count"
	}

	return e.status.Upsert(ctx, StatusRecord{
		CSDID:        seed.CSDID,
		Municipality: seed.Name,
		Type:         seed.Type,
		ProvinceID:   seed.ProvinceID,
		Province:     seed.Province,
		Status:       status,
		Downloaded:   e.countOnDisk(seed),
		Found:        res.Found,
		Years:        res.Years,
		NeedsReparse: needsReparse,
		Notes:        notes,
		LastUpdated:  e.now(),
		PageURL:      seed.PageURL,
	})
}

// countOnDisk counts the PDFs actually present for a municipality, so the
// status ledger reflects the filesystem rather than an incrementing counter.
func (e *Engine) countOnDisk(seed Seed) int {
	dir := filepath.Join(e.cfg.LakeDir, seed.ProvinceID, seed.CSDID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			count++
		}
	}
	return count
}

// backfillIdentity fills missing seed columns from reference data.
func (e *Engine) backfillIdentity(seed *Seed) {
	if e.lookup == nil || seed.CSDID == "" {
		return
	}
	if seed.ProvinceID != "" && seed.Province != "" && seed.Name != "" && seed.Type != "" {
		return
	}
	info, ok := e.lookup.ByCSD(seed.CSDID)
	if !ok {
		return
	}
	if seed.ProvinceID == "" {
		seed.ProvinceID = info.ProvinceID
	}
	if seed.Province == "" {
		seed.Province = info.ProvinceName
	}
	if seed.Name == "" {
		seed.Name = info.Name
	}
	if seed.Type == "" {
		seed.Type = info.StatusName
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
