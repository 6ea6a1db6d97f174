// Package article turns a URL into the plain text the pipeline consumes.
package article

import (
	"concept-digest-be/pkg/apperr"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxBodyBytes = 5 << 20

// Article is the fetched page reduced to a title and readable text.
type Article struct {
	Title string
	Text  string
	URL   string
}

type Source interface {
	Fetch(ctx context.Context, rawURL string) (*Article, error)
}

// HTMLFetcher downloads a page and keeps the paragraphs of its main content.
type HTMLFetcher struct {
	client *http.Client
}

func NewHTMLFetcher(client *http.Client) *HTMLFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLFetcher{client: client}
}

func (f *HTMLFetcher) Fetch(ctx context.Context, rawURL string) (*Article, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation(fmt.Sprintf("invalid article url %q", rawURL))
	}
	if strings.EqualFold(path.Ext(u.Path), ".pdf") {
		return nil, apperr.Validation("pdf articles are not supported, paste the text instead")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ConceptDigest/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.NewTransportError("article", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.NewStatusError("article", resp, body)
	}

	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if mediaType == "application/pdf" {
			return nil, apperr.Validation("pdf articles are not supported, paste the text instead")
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	art := &Article{
		Title: Title(doc),
		Text:  Text(doc),
		URL:   rawURL,
	}
	if art.Text == "" {
		return nil, apperr.Validation("no readable text found at " + rawURL)
	}
	return art, nil
}

// Title prefers og:title over the <title> element.
func Title(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if og = collapse(og); og != "" {
			return og
		}
	}
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return collapse(doc.Find("h1").First().Text())
}

// Text joins the paragraphs and headings of the first <article> (or <main>,
// or the whole body) with blank lines.
func Text(doc *goquery.Document) string {
	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	root.Find("script, style, nav, footer, aside, noscript").Remove()

	var blocks []string
	root.Find("h1, h2, h3, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		// nested blocks are picked up on their own
		if s.Is("li") && s.Find("p").Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			if goquery.NodeName(s) == "h2" || goquery.NodeName(s) == "h3" {
				text = "## " + text
			}
			blocks = append(blocks, text)
		}
	})
	return strings.Join(blocks, "\n\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
