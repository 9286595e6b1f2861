// Package article scrapes the readable body of an article page.
package article

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	maxImages    = 5
	maxTextRunes = 5000
	minBlockRune = 20
	userAgent    = "Mozilla/5.0 (compatible; NewsRelay/1.0)"
)

var defaultSelectors = []string{"article", ".post-content", ".entry-content", ".article-content", ".story-content"}

// Selectors lists, per source code, the CSS selectors tried in order for
// the article container.
var Selectors = map[string][]string{
	"BBC":     {".article__body-content", ".story-body__inner", "article"},
	"GUARD":   {".article-body-commercial-selector", ".content__article-body", "article"},
	"CNN":     {".article__content", ".zn-body__paragraph", "article"},
	"ALJ":     {".article-p-wrapper", ".wysiwyg", "article"},
	"NPR":     {"#storytext", ".storytext", "article"},
	"ANN":     {"#content-zone .meat", ".KonaBody", "article"},
	"ANN_DC":  {"#content-zone .meat", ".KonaBody", "article"},
	"CR":      {".article-content", ".entry-content", "article"},
	"KOTAKU":  {".js_post-content", ".entry-content", "article"},
	"PCGAMER": {"#article-body", ".article-body", "article"},
}

const noiseTags = "script, style, nav, footer, header, aside, iframe, form, noscript"

var (
	imageNoise = []string{"logo", "icon", "avatar", "ads", "1x1", "pixel"}
	blockNoise = []string{"cookie", "subscribe", "newsletter", "advertisement"}
)

// Extractor implements ports.ArticleExtractor with goquery.
type Extractor struct {
	client    *http.Client
	selectors map[string][]string
}

var _ ports.ArticleExtractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client; selectors default to Selectors.
func NewExtractor(client *http.Client, selectors map[string][]string) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if selectors == nil {
		selectors = Selectors
	}
	return &Extractor{client: client, selectors: selectors}
}

// Extract downloads pageURL and returns its paragraphs, headings, quotes and
// up to five content images.
func (e *Extractor) Extract(ctx context.Context, pageURL, sourceCode string) (domain.ArticleContent, error) {
	doc, err := e.fetchDocument(ctx, pageURL)
	if err != nil {
		return domain.ArticleContent{}, err
	}
	doc.Find(noiseTags).Remove()

	container := e.container(doc, sourceCode)
	if container.Length() == 0 {
		return domain.ArticleContent{}, fmt.Errorf("no article container in %s", pageURL)
	}

	base, _ := url.Parse(pageURL)
	content := domain.ArticleContent{
		Images: collectImages(container, base),
		Blocks: collectBlocks(container),
	}

	text := strings.Join(strings.Fields(container.Text()), " ")
	if utf8.RuneCountInString(text) > maxTextRunes {
		text = string([]rune(text)[:maxTextRunes])
	}
	content.Text = text
	return content, nil
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (e *Extractor) container(doc *goquery.Document, sourceCode string) *goquery.Selection {
	selectors, ok := e.selectors[sourceCode]
	if !ok {
		selectors = defaultSelectors
	}
	for _, sel := range selectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("body").First()
}

func collectImages(container *goquery.Selection, base *url.URL) []string {
	var images []string
	container.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := firstAttr(img, "src", "data-src", "data-lazy-src")
		if src == "" || containsAny(strings.ToLower(src), imageNoise) {
			return true
		}
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		images = append(images, src)
		return len(images) < maxImages
	})
	return images
}

func collectBlocks(container *goquery.Selection) []domain.ArticleBlock {
	var blocks []domain.ArticleBlock
	container.Find("p, h2, h3, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if utf8.RuneCountInString(text) <= minBlockRune || containsAny(strings.ToLower(text), blockNoise) {
			return
		}
		kind := domain.BlockParagraph
		switch goquery.NodeName(s) {
		case "h2", "h3":
			kind = domain.BlockHeading
		case "blockquote":
			kind = domain.BlockQuote
		}
		blocks = append(blocks, domain.ArticleBlock{Kind: kind, Text: text})
	})
	return blocks
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
