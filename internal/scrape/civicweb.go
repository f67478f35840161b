package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const civicWebPathMarker = "civicweb.net/filepro/documents"

var docIDRe = regexp.MustCompile(`/document/(\d+)`)

// Folder titles must mention finance before we traverse into them. This
// bounds the crawl to the financially relevant subtrees of large document
// centers.
var folderKeywords = []string{"report", "finance", "financial", "annual", "statement", "sofi"}

// IsCivicWebURL reports whether a URL belongs to a CivicWeb document center.
func IsCivicWebURL(rawURL string) bool {
	return strings.Contains(rawURL, civicWebPathMarker)
}

// CivicWebExtractor handles CivicWeb document centers, which tag documents
// and folders with data-type/data-id/data-title attributes and serve every
// document at /document/{id} regardless of the listing page it appears on.
type CivicWebExtractor struct{}

// Extract returns document links synthesized from data attributes, plus
// finance-related folders as navigable sub-folder links.
func (CivicWebExtractor) Extract(page Page) []Link {
	if !pageLooksHTML(page) {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	origin, err := pageOrigin(page)
	if err != nil {
		return nil
	}

	var links []Link
	seen := make(map[string]struct{})

	doc.Find(`[data-type="document"]`).Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("data-id", "")
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		links = append(links, Link{
			URL:               origin + "/document/" + id,
			Text:              truncateText(s.AttrOr("data-title", "")),
			LooksLikeDocument: true,
		})
	})

	// Fallback for documents linked directly but not exposed via the
	// structured attributes.
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if !strings.Contains(href, "/document/") || strings.Contains(href, "filepro") {
			return
		}
		m := docIDRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		text := s.AttrOr("title", "")
		if text == "" {
			text = strings.TrimSpace(s.Text())
		}
		links = append(links, Link{
			URL:               origin + "/document/" + id,
			Text:              truncateText(text),
			LooksLikeDocument: true,
		})
	})

	doc.Find(`[data-type="folder"]`).Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("data-id", "")
		if id == "" {
			return
		}
		title := s.AttrOr("data-title", "")
		if !folderLooksFinancial(title) {
			return
		}
		links = append(links, Link{
			URL:      origin + "/filepro/documents/" + id + "/",
			Text:     truncateText(title),
			IsFolder: true,
		})
	})

	return links
}

func folderLooksFinancial(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range folderKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func pageOrigin(page Page) (string, error) {
	u, err := url.Parse(pageBaseURL(page))
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
