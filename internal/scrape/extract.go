package scrape

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxLinkTextLen bounds display text carried on a Link.
const maxLinkTextLen = 200

// URL path segments that commonly serve documents on municipal sites. These
// paths also serve plenty of non-report assets, so a matching URL only
// counts as a document when the link text corroborates it.
var docURLSegments = []string{"/media/", "/document/", "/files/", "/download/", "/assets/"}

var docTextKeywords = []string{"annual report", "financial statement", "sofi", "view", "download", "report"}

// GenericExtractor scans every anchor on an arbitrary HTML page.
type GenericExtractor struct{}

// Extract returns all anchors with hrefs resolved to absolute URLs. Parse
// failures yield nil; the caller treats that as "nothing found here".
func (GenericExtractor) Extract(page Page) []Link {
	if !pageLooksHTML(page) {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageBaseURL(page))
	if err != nil {
		return nil
	}

	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		text := truncateText(strings.TrimSpace(s.Text()))

		links = append(links, Link{
			URL:               abs,
			Text:              text,
			LooksLikeDocument: looksLikeDocument(text, abs),
		})
	})
	return links
}

// looksLikeDocument reports whether a link plausibly points at a
// downloadable report. Either the URL ends in .pdf, or the URL sits under a
// document-serving path and the text reads like a report link.
func looksLikeDocument(text, rawURL string) bool {
	urlLower := strings.ToLower(rawURL)
	if strings.HasSuffix(urlLower, ".pdf") {
		return true
	}

	inDocPath := false
	for _, seg := range docURLSegments {
		if strings.Contains(urlLower, seg) {
			inDocPath = true
			break
		}
	}
	if !inDocPath {
		return false
	}

	textLower := strings.ToLower(text)
	for _, kw := range docTextKeywords {
		if strings.Contains(textLower, kw) {
			return true
		}
	}
	return false
}

// pageLooksHTML checks the declared Content-Type before anchors are parsed
// out of a body. Seed URLs occasionally point straight at a PDF; scanning a
// binary body for anchors finds garbage links at best. No Content-Type is
// treated as HTML.
func pageLooksHTML(page Page) bool {
	ct := strings.ToLower(page.Headers.Get("Content-Type"))
	if ct == "" {
		return true
	}
	return strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}

func pageBaseURL(page Page) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}

func truncateText(s string) string {
	r := []rune(s)
	if len(r) <= maxLinkTextLen {
		return s
	}
	return string(r[:maxLinkTextLen])
}

// ExtractorFor selects the extraction strategy for a page URL.
func ExtractorFor(rawURL string) Extractor {
	if IsCivicWebURL(rawURL) {
		return CivicWebExtractor{}
	}
	return GenericExtractor{}
}
