package pagetext

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var _ output.PageTextExtractor = (*Extractor)(nil)

type CleanConfig struct {
	TagsToRemove  []string
	MaxOutputSize int
}

// DefaultCleanConfig drops everything that never renders as readable text.
var DefaultCleanConfig = CleanConfig{
	TagsToRemove: []string{
		"script", "style", "noscript", "svg", "iframe", "link", "meta", "template", "canvas",
	},
	MaxOutputSize: 20_000,
}

// Extractor turns a document into a compact outline of headings, text, links and form controls.
type Extractor struct {
	cfg CleanConfig
}

func NewExtractor(cfg *CleanConfig) *Extractor {
	if cfg == nil {
		cfg = &DefaultCleanConfig
	}
	return &Extractor{cfg: *cfg}
}

func (e *Extractor) Extract(rawHTML, url string) (entity.PageText, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return entity.PageText{}, fmt.Errorf("parse html: %w", err)
	}

	page := entity.PageText{URL: url, Title: collapse(textOf(findNode(doc, atom.Title)))}

	body := findNode(doc, atom.Body)
	if body == nil {
		return page, nil
	}
	cleanNode(body, &e.cfg)

	w := &outlineWriter{}
	w.walk(body)
	page.Text = truncate(w.String(), e.cfg.MaxOutputSize)
	return page, nil
}

func findNode(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, a); found != nil {
			return found
		}
	}
	return nil
}

// cleanNode removes comments, unwanted tags and hidden elements in place.
func cleanNode(n *html.Node, cfg *CleanConfig) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && (isOneOf(c.Data, cfg.TagsToRemove...) || hidden(c)):
			n.RemoveChild(c)
		case c.Type == html.ElementNode:
			cleanNode(c, cfg)
		}
		c = next
	}
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "type":
			if n.DataAtom == atom.Input && a.Val == "hidden" {
				return true
			}
		case "style":
			s := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

type outlineWriter struct {
	lines []string
	cur   strings.Builder
}

func (w *outlineWriter) flush() {
	if line := collapse(w.cur.String()); line != "" {
		w.lines = append(w.lines, line)
	}
	w.cur.Reset()
}

func (w *outlineWriter) String() string {
	w.flush()
	return strings.Join(w.lines, "\n")
}

func (w *outlineWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.cur.WriteString(n.Data)
		w.cur.WriteString(" ")
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c)
		}
		return
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.flush()
		level := int(n.Data[1] - '0')
		w.cur.WriteString(strings.Repeat("#", level) + " " + collapse(textOf(n)))
		w.flush()
		return
	case atom.A:
		text := collapse(textOf(n))
		if href := attr(n, "href"); href != "" && text != "" {
			fmt.Fprintf(&w.cur, "[%s](%s) ", text, href)
		} else {
			w.cur.WriteString(text + " ")
		}
		return
	case atom.Button:
		fmt.Fprintf(&w.cur, "[button: %s] ", firstNonEmpty(collapse(textOf(n)), attr(n, "aria-label")))
		return
	case atom.Input, atom.Textarea, atom.Select:
		w.cur.WriteString(describeControl(n) + " ")
		return
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			fmt.Fprintf(&w.cur, "[image: %s] ", alt)
		}
		return
	case atom.Br:
		w.flush()
		return
	}

	block := isBlock(n.DataAtom)
	if block {
		w.flush()
	}
	if n.DataAtom == atom.Li {
		w.cur.WriteString("- ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.flush()
	}
}

func describeControl(n *html.Node) string {
	kind := n.Data
	if t := attr(n, "type"); t != "" && n.DataAtom == atom.Input {
		kind = "input " + t
	}
	parts := []string{kind}
	if name := firstNonEmpty(attr(n, "aria-label"), attr(n, "name"), attr(n, "id")); name != "" {
		parts = append(parts, "name="+name)
	}
	if p := attr(n, "placeholder"); p != "" {
		parts = append(parts, fmt.Sprintf("placeholder=%q", p))
	}
	if v := attr(n, "value"); v != "" && attr(n, "type") != "password" {
		parts = append(parts, fmt.Sprintf("value=%q", v))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Nav, atom.Main,
		atom.Aside, atom.Ul, atom.Ol, atom.Li, atom.Table, atom.Tr, atom.Form, atom.Label, atom.Blockquote, atom.Pre:
		return true
	}
	return false
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, maxSize int) string {
	if maxSize <= 0 || len(s) <= maxSize {
		return s
	}
	for maxSize > 0 && !utf8.RuneStart(s[maxSize]) {
		maxSize--
	}
	return s[:maxSize] + "\n... (page text truncated)"
}

func isOneOf(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
