package markdown

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/wudi/mdgate/config"
)

// Pre-compiled tag locators for base-reference injection.
var (
	baseTagRe = regexp.MustCompile(`(?i)<base\b[^>]*>`)
	headTagRe = regexp.MustCompile(`(?i)<head\b[^>]*>`)
	htmlTagRe = regexp.MustCompile(`(?i)<html\b[^>]*>`)

	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
)

// baseHrefEscaper escapes a URL for attribute embedding. Reflected base URLs
// must never break out of the href attribute.
var baseHrefEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Shared default converter, built lazily behind a mutex so concurrent first
// uses construct it exactly once. Reset exists for test isolation.
var (
	defaultConvMu sync.Mutex
	defaultConv   *md.Converter
)

// DefaultConverter returns the shared default-configured converter,
// constructing it on first use. The instance is read-only after construction.
func DefaultConverter() *md.Converter {
	defaultConvMu.Lock()
	defer defaultConvMu.Unlock()
	if defaultConv == nil {
		defaultConv = newConverter(config.ConvertConfig{})
	}
	return defaultConv
}

// ResetDefaultConverter clears the shared converter so the next use rebuilds it.
func ResetDefaultConverter() {
	defaultConvMu.Lock()
	defaultConv = nil
	defaultConvMu.Unlock()
}

// newConverter builds a converter from style options. Empty fields fall back
// to the library defaults.
func newConverter(cfg config.ConvertConfig) *md.Converter {
	opts := &md.Options{
		HeadingStyle:     cfg.HeadingStyle,
		CodeBlockStyle:   cfg.CodeBlockStyle,
		BulletListMarker: cfg.BulletListMarker,
		GetAbsoluteURL:   resolveAgainstBase,
	}
	applyExtras(opts, cfg.Extras)

	conv := md.NewConverter("", true, opts)
	conv.Use(plugin.GitHubFlavored())
	return conv
}

// applyExtras maps pass-through style extras onto converter options by name.
// Unknown names are ignored so configs written against newer converter
// versions do not fail here.
func applyExtras(opts *md.Options, extras map[string]string) {
	for name, value := range extras {
		switch name {
		case "horizontal_rule":
			opts.HorizontalRule = value
		case "fence":
			opts.Fence = value
		case "em_delimiter":
			opts.EmDelimiter = value
		case "strong_delimiter":
			opts.StrongDelimiter = value
		case "link_style":
			opts.LinkStyle = value
		case "link_reference_style":
			opts.LinkReferenceStyle = value
		case "escape_mode":
			opts.EscapeMode = value
		}
	}
}

// Transformer converts fetched HTML into markdown. With zero style options it
// reuses the shared default converter; otherwise it owns an independent
// instance and never touches the shared one.
type Transformer struct {
	conv *md.Converter // nil = use the shared default
}

// NewTransformer builds a transformer from style options.
func NewTransformer(cfg config.ConvertConfig) *Transformer {
	if isZeroConvert(cfg) {
		return &Transformer{}
	}
	return &Transformer{conv: newConverter(cfg)}
}

func isZeroConvert(cfg config.ConvertConfig) bool {
	return cfg.HeadingStyle == "" && cfg.CodeBlockStyle == "" &&
		cfg.BulletListMarker == "" && len(cfg.Extras) == 0
}

func (t *Transformer) converter() *md.Converter {
	if t.conv != nil {
		return t.conv
	}
	return DefaultConverter()
}

// Transform rewrites the document's base reference to baseURL and converts
// the result to markdown.
func (t *Transformer) Transform(body []byte, baseURL string) (string, error) {
	doc := injectBase(string(body), baseURL)

	out, err := t.converter().ConvertString(doc)
	if err != nil {
		return "", err
	}
	return cleanMarkdown(out), nil
}

// resolveAgainstBase resolves link and image URLs against the document's base
// element. The converter itself is URL-agnostic, so this is what makes the
// injected base reference effective. Documents without a base element fall
// back to the library default.
func resolveAgainstBase(selec *goquery.Selection, rawURL string, domain string) string {
	href, ok := selec.Parents().Last().Find("base[href]").Attr("href")
	if !ok || href == "" {
		return md.DefaultGetAbsoluteURL(selec, rawURL, domain)
	}
	base, err := url.Parse(href)
	if err != nil {
		return rawURL
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return base.ResolveReference(ref).String()
}

// injectBase replaces an existing base element, or inserts one after the head
// opening tag, or synthesizes a head after the html opening tag, or prepends
// to the document. The href is attribute-escaped first.
func injectBase(doc, baseURL string) string {
	tag := `<base href="` + baseHrefEscaper.Replace(baseURL) + `">`

	if loc := baseTagRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + tag + doc[loc[1]:]
	}
	if loc := headTagRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + tag + doc[loc[1]:]
	}
	if loc := htmlTagRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + "<head>" + tag + "</head>" + doc[loc[1]:]
	}
	return tag + doc
}

// cleanMarkdown collapses excessive blank lines and trims trailing
// whitespace from each line.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
