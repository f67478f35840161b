// Package scrape implements the discovery and download engine for municipal
// annual financial reports: page traversal, link classification, per-year
// document selection, and PDF retrieval.
package scrape

import (
	"net/http"
	"time"
)

// Kind labels a candidate document by what it appears to be.
type Kind string

// Document kinds, most desirable first.
const (
	KindAnnualReport       Kind = "annual_report"
	KindFinancialStatement Kind = "financial_statement"
	KindSOFI               Kind = "sofi"
	KindOther              Kind = "other"
)

// Link is one anchor discovered on a page. The URL is always absolute;
// relative hrefs are resolved against the page URL during extraction.
type Link struct {
	URL               string
	Text              string
	LooksLikeDocument bool
	IsFolder          bool
}

// Candidate is a Link annotated with classification results. Year is 0 when
// no fiscal year could be extracted. Lower Priority is better.
type Candidate struct {
	Link
	Kind     Kind
	Year     int
	Draft    bool
	Priority int
}

// Page is a fetched page plus response metadata.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// DownloadResult reports the outcome of a single document download.
// OriginalFilename is the server-declared name from Content-Disposition,
// when present.
type DownloadResult struct {
	Success          bool
	OriginalFilename string
}

// Seed is one municipality row from the discovered-URLs ledger.
type Seed struct {
	CSDID      string
	Name       string
	Type       string
	ProvinceID string
	Province   string
	PageURL    string
}

// MasterRecord is one durable row per successful download.
type MasterRecord struct {
	CSDID         string
	Municipality  string
	ProvinceID    string
	Province      string
	Type          string
	Year          int
	SourcePageURL string
	DocumentURL   string
	DocumentPath  string
}

// StatusRecord summarizes one municipality run. Downloaded is the number of
// PDFs actually present on disk, recomputed from the filesystem each run.
type StatusRecord struct {
	CSDID        string
	Municipality string
	Type         string
	ProvinceID   string
	Province     string
	Status       string
	Downloaded   int
	Found        int
	Years        int
	NeedsReparse bool
	Notes        string
	LastUpdated  time.Time
	PageURL      string
}

// Run statuses recorded in the status ledger.
const (
	StatusOK   = "OK"
	StatusFail = "FAIL"
)

// RunResult is returned by the engine for one municipality.
type RunResult struct {
	Success   bool
	Downloads int
	Found     int
	Years     int
	Message   string
}
