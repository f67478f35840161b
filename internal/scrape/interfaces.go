package scrape

import "context"

// Fetcher retrieves a page over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Extractor pulls candidate links out of a fetched page.
type Extractor interface {
	Extract(page Page) []Link
}

// DocumentDownloader fetches a document's bytes and persists them at dest.
// Failures are reported in the result, never as an error.
type DocumentDownloader interface {
	Download(ctx context.Context, rawURL, dest string) DownloadResult
}

// MasterWriter appends download provenance rows.
type MasterWriter interface {
	Append(ctx context.Context, rec MasterRecord) error
}

// StatusWriter upserts per-municipality status rows.
type StatusWriter interface {
	Upsert(ctx context.Context, rec StatusRecord) error
}

// MunicipalityInfo is the identity data resolvable from a CSD ID.
type MunicipalityInfo struct {
	CSDID        string
	Name         string
	StatusName   string
	ProvinceID   string
	ProvinceName string
}

// IdentityLookup resolves municipality identity fields by CSD ID. It backs
// the backfill step for seed rows with missing columns.
type IdentityLookup interface {
	ByCSD(id string) (MunicipalityInfo, bool)
}
