package domain

// BlockKind is the type of an extracted article block.
type BlockKind string

const (
	BlockParagraph BlockKind = "p"
	BlockHeading   BlockKind = "h3"
	BlockQuote     BlockKind = "blockquote"
)

// ArticleBlock is one text block scraped from an article page.
type ArticleBlock struct {
	Kind BlockKind
	Text string
}

// ArticleContent is the readable body of an article page.
type ArticleContent struct {
	Blocks []ArticleBlock
	Images []string
	Text   string
}

// Empty reports whether nothing readable was extracted.
func (a ArticleContent) Empty() bool {
	return len(a.Blocks) == 0
}
