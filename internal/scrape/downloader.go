package scrape

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/metrics"
)

// maxDocumentBytes caps how much of a response is read into memory.
// Municipal annual reports are rarely over a few tens of megabytes.
const maxDocumentBytes = 256 << 20

// Loose fallback for Content-Disposition headers that mime.ParseMediaType
// rejects (unquoted spaces show up in the wild).
var dispositionFilenameRe = regexp.MustCompile(`filename\*?=["']?([^"';\n]+)["']?`)

// HTTPDownloader fetches document bytes and writes them to disk.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTTPDownloader builds a downloader with redirect following and the
// given per-request timeout. Binary downloads get a longer budget than page
// fetches.
func NewHTTPDownloader(timeout time.Duration, userAgent string, logger *zap.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Download fetches rawURL and persists the body at dest. A transport error,
// non-2xx status, or non-PDF response yields a failed result with nothing
// written; errors never propagate past this boundary.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, dest string) DownloadResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		d.logger.Warn("download request build failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveDownload("error", 0)
		return DownloadResult{}
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("download failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveDownload("error", 0)
		return DownloadResult{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("download rejected",
			zap.String("url", rawURL),
			zap.Int("status_code", resp.StatusCode),
		)
		metrics.ObserveDownload("error", 0)
		return DownloadResult{}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "pdf") && !strings.HasSuffix(strings.ToLower(rawURL), ".pdf") {
		d.logger.Warn("not a pdf",
			zap.String("url", rawURL),
			zap.String("content_type", contentType),
		)
		metrics.ObserveDownload("not_pdf", 0)
		return DownloadResult{}
	}

	originalFilename := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		d.logger.Warn("download read failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveDownload("error", 0)
		return DownloadResult{}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		d.logger.Warn("create download dir failed", zap.String("dest", dest), zap.Error(err))
		metrics.ObserveDownload("error", 0)
		return DownloadResult{}
	}
	if err := os.WriteFile(dest, body, 0o600); err != nil {
		d.logger.Warn("write download failed", zap.String("dest", dest), zap.Error(err))
		metrics.ObserveDownload("error", 0)
		return DownloadResult{}
	}

	metrics.ObserveDownload("ok", len(body))
	return DownloadResult{
		Success:          true,
		OriginalFilename: originalFilename,
	}
}

// FilenameFromDisposition extracts the declared filename from a
// Content-Disposition header, percent-decoded. Returns "" when absent.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return decodeFilename(name)
		}
	}
	if m := dispositionFilenameRe.FindStringSubmatch(header); m != nil {
		return decodeFilename(strings.TrimSpace(m[1]))
	}
	return ""
}

func decodeFilename(name string) string {
	if decoded, err := url.QueryUnescape(name); err == nil {
		return decoded
	}
	return name
}

// CanonicalFilename is the on-disk name for a resolved fiscal year.
func CanonicalFilename(year int) string {
	return fmt.Sprintf("financial_statement_%d.pdf", year)
}

// UnknownFilename is the on-disk name for the nth document without a
// resolvable year, counted from 1.
func UnknownFilename(n int) string {
	return fmt.Sprintf("financial_statement_unknown_%d.pdf", n)
}

// Finalize renames a saved file to the year-qualified canonical name once a
// year is discovered after the fact. The rename is skipped when the target
// already exists or equals path, so repeated calls are safe. Returns the
// path the file lives at afterwards.
func Finalize(path string, year int) string {
	if year == 0 {
		return path
	}
	target := filepath.Join(filepath.Dir(path), CanonicalFilename(year))
	if target == path {
		return path
	}
	if _, err := os.Stat(target); err == nil {
		return path
	}
	if err := os.Rename(path, target); err != nil {
		return path
	}
	return target
}
