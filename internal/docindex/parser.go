package docindex

import (
	"regexp"
	"strings"
)

// Section is a markdown heading and the text under it
type Section struct {
	Heading string
	Level   int
	Content string
}

// Text renders the section for chunking with its heading on the first line
func (s Section) Text() string {
	if s.Heading == "" {
		return s.Content
	}
	return s.Heading + "\n" + s.Content
}

// Parser splits markdown textbooks at their headings
type Parser struct {
	headingRegex *regexp.Regexp
}

// NewParser creates a new markdown parser
func NewParser() *Parser {
	return &Parser{
		headingRegex: regexp.MustCompile(`^(#{1,6})\s+(.+)$`),
	}
}

// ParseSections extracts the sections of content. Text before the first
// heading becomes a level 0 section without a heading. Headings inside
// fenced code blocks are treated as text.
func (p *Parser) ParseSections(content string) []Section {
	var (
		sections []Section
		current  = Section{}
		body     strings.Builder
		inFence  bool
	)

	flush := func() {
		current.Content = strings.TrimSpace(body.String())
		if current.Content != "" || current.Heading != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence {
			if m := p.headingRegex.FindStringSubmatch(line); m != nil {
				flush()
				current = Section{Heading: strings.TrimSpace(m[2]), Level: len(m[1])}
				continue
			}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

// splitMarkdown chunks each section separately so no chunk spans two
// headings. Sections with a heading but no body are dropped.
func splitMarkdown(p *Parser, c Chunker, text string) []string {
	var parts []string
	for _, s := range p.ParseSections(text) {
		if s.Content == "" {
			continue
		}
		parts = append(parts, c.Split(s.Text())...)
	}
	return parts
}
