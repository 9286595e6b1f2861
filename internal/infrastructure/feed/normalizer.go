package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	nsMedia = "http://search.yahoo.com/mrss/"

	summaryLimit    = 350
	summaryMinRunes = 20
)

var urlExpr = regexp.MustCompile(`https?://\S+`)

// Normalizer decodes RSS 2.0, RDF and Atom documents into candidate items.
// Decoding is token based and lenient: a document that breaks part way
// through yields the entries read before the break together with the error.
type Normalizer struct {
	policy   *bluemonday.Policy
	titleKey func(string) string
}

var _ ports.FeedNormalizer = (*Normalizer)(nil)

// NewNormalizer builds a normalizer. titleKey, when set, fills
// CandidateItem.NormalizedTitle.
func NewNormalizer(titleKey func(string) string) *Normalizer {
	return &Normalizer{policy: bluemonday.StrictPolicy(), titleKey: titleKey}
}

type text struct {
	XMLName xml.Name
	Body    string `xml:",chardata"`
}

type link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Body string `xml:",chardata"`
}

type media struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Medium string `xml:"medium,attr"`
}

type category struct {
	Term string `xml:"term,attr"`
	Body string `xml:",chardata"`
}

type entry struct {
	Titles       []text     `xml:"title"`
	Links        []link     `xml:"link"`
	GUID         string     `xml:"guid"`
	ID           string     `xml:"id"`
	Descriptions []text     `xml:"description"`
	Summary      string     `xml:"summary"`
	Encoded      string     `xml:"encoded"`
	AtomContent  string     `xml:"http://www.w3.org/2005/Atom content"`
	PubDate      string     `xml:"pubDate"`
	Published    string     `xml:"published"`
	DCDate       string     `xml:"date"`
	Updated      string     `xml:"updated"`
	Enclosures   []media    `xml:"enclosure"`
	MediaContent []media    `xml:"http://search.yahoo.com/mrss/ content"`
	Thumbnails   []media    `xml:"http://search.yahoo.com/mrss/ thumbnail"`
	Categories   []category `xml:"category"`
}

// Normalize implements ports.FeedNormalizer.
func (n *Normalizer) Normalize(raw []byte, src domain.Source) ([]domain.CandidateItem, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("feed: empty document")
	}

	d := xml.NewDecoder(bytes.NewReader(raw))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	var (
		items []domain.CandidateItem
		root  string
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if root == "" {
				return nil, fmt.Errorf("feed: %w", err)
			}
			return items, fmt.Errorf("feed: stopped after %d entries: %w", len(items), err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name := strings.ToLower(se.Name.Local)
		if root == "" {
			switch name {
			case "rss", "rdf", "feed":
				root = name
				continue
			default:
				return nil, fmt.Errorf("feed: unknown root element <%s>", se.Name.Local)
			}
		}
		if name != "item" && name != "entry" {
			continue
		}

		var e entry
		if err := d.DecodeElement(&e, &se); err != nil {
			return items, fmt.Errorf("feed: stopped after %d entries: %w", len(items), err)
		}
		if item, ok := n.toItem(e, src); ok {
			items = append(items, item)
		}
	}

	if root == "" {
		return nil, errors.New("feed: no root element")
	}
	return items, nil
}

func (n *Normalizer) toItem(e entry, src domain.Source) (domain.CandidateItem, bool) {
	title := n.cleanTitle(pickText(e.Titles))
	url := pickLink(e)
	if title == "" || url == "" {
		return domain.CandidateItem{}, false
	}

	body := firstNonEmpty(pickText(e.Descriptions), e.Summary, e.Encoded, e.AtomContent)
	item := domain.CandidateItem{
		SourceCode:   src.Code,
		RawTitle:     title,
		CanonicalURL: url,
		PublishTime:  parseTime(firstNonEmpty(e.PubDate, e.Published, e.DCDate, e.Updated)),
		Summary:      summarize(body, title),
		ImageURL:     pickImage(e, body),
		FeedCategory: pickCategory(e.Categories),
	}
	if n.titleKey != nil {
		item.NormalizedTitle = n.titleKey(title)
	}
	return item, true
}

func (n *Normalizer) cleanTitle(raw string) string {
	clean := html.UnescapeString(n.policy.Sanitize(raw))
	return strings.Join(strings.Fields(clean), " ")
}

// pickText prefers elements outside the media namespace.
func pickText(list []text) string {
	for _, t := range list {
		if t.XMLName.Space != nsMedia && strings.TrimSpace(t.Body) != "" {
			return strings.TrimSpace(t.Body)
		}
	}
	for _, t := range list {
		if s := strings.TrimSpace(t.Body); s != "" {
			return s
		}
	}
	return ""
}

func pickLink(e entry) string {
	for _, l := range e.Links {
		if body := strings.TrimSpace(l.Body); isHTTP(body) {
			return body
		}
	}
	for _, l := range e.Links {
		if href := strings.TrimSpace(l.Href); isHTTP(href) && (l.Rel == "" || l.Rel == "alternate") {
			return href
		}
	}
	for _, l := range e.Links {
		if href := strings.TrimSpace(l.Href); isHTTP(href) && l.Rel != "self" {
			return href
		}
	}
	for _, candidate := range []string{e.GUID, e.ID} {
		if c := strings.TrimSpace(candidate); isHTTP(c) {
			return c
		}
	}
	return ""
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func pickImage(e entry, body string) string {
	for _, m := range e.MediaContent {
		if m.URL != "" && (m.Medium == "image" || strings.HasPrefix(m.Type, "image/") || (m.Medium == "" && m.Type == "")) {
			return m.URL
		}
	}
	for _, m := range e.Enclosures {
		if m.URL != "" && strings.HasPrefix(m.Type, "image/") {
			return m.URL
		}
	}
	for _, m := range e.Thumbnails {
		if m.URL != "" {
			return m.URL
		}
	}
	if !strings.Contains(body, "<") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	if isHTTP(src) {
		return src
	}
	return ""
}

func pickCategory(list []category) string {
	for _, c := range list {
		if term := strings.TrimSpace(c.Term); term != "" {
			return term
		}
		if body := strings.TrimSpace(c.Body); body != "" {
			return body
		}
	}
	return ""
}

// summarize strips markup and links from body, collapses whitespace and
// bounds the length. Short or empty summaries fall back to a title teaser.
func summarize(body, title string) string {
	txt := body
	if strings.Contains(body, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
			doc.Find("script, style, header, footer, a").Remove()
			txt = doc.Text()
		}
	}
	txt = urlExpr.ReplaceAllString(html.UnescapeString(txt), "")
	txt = strings.Join(strings.Fields(txt), " ")

	if utf8.RuneCountInString(txt) < summaryMinRunes {
		return "Read more about: " + title
	}
	if utf8.RuneCountInString(txt) > summaryLimit {
		runes := []rune(txt)
		return strings.TrimSpace(string(runes[:summaryLimit-3])) + "..."
	}
	return txt
}

var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02",
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
