// Package injector adds a schema.org Product JSON-LD block to rendered
// LeafBridge product pages.
package injector

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"schemainjector/schema"
)

// ScriptType is the type attribute of the injected script element
const ScriptType = "application/ld+json"

var (
	// ErrMissingAttribute means the container exists but has no data attribute
	ErrMissingAttribute = errors.New("product data attribute missing")
	// ErrMalformedSource means the data attribute is not a valid product object
	ErrMalformedSource = errors.New("malformed product data")
	// ErrNoHead means the document has nowhere to put the script
	ErrNoHead = errors.New("document has no head element")
)

// Outcome describes what happened to a page
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeNoContainer
	OutcomeInjected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoContainer:
		return "no_container"
	case OutcomeInjected:
		return "injected"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Selectors locate the product data and page details in the DOM
type Selectors struct {
	Container   string
	Attribute   string
	Image       string
	Description string
}

// DefaultSelectors match the LeafBridge single product template
func DefaultSelectors() Selectors {
	return Selectors{
		Container:   ".lb_prod_single_add_to_cart",
		Attribute:   "filter_data",
		Image:       ".lb_prod_single_img img",
		Description: ".lb_prod_single_descr",
	}
}

// Options configure an Injector. Zero values fall back to defaults.
type Options struct {
	PathMarker string
	Selectors  Selectors
	Store      schema.Store
	Now        func() time.Time
	Logger     *zap.Logger
}

// Injector is immutable after New and safe for concurrent use
type Injector struct {
	pathMarker string
	sel        Selectors
	store      schema.Store
	now        func() time.Time
	log        *zap.Logger
}

// New creates an injector
func New(opts Options) *Injector {
	if opts.PathMarker == "" {
		opts.PathMarker = "/product/"
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	if opts.Store == (schema.Store{}) {
		opts.Store = schema.DefaultStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Injector{
		pathMarker: opts.PathMarker,
		sel:        opts.Selectors,
		store:      opts.Store,
		now:        opts.Now,
		log:        opts.Logger.Named("injector"),
	}
}

// ShouldProcess reports whether a request path is a product page
func (in *Injector) ShouldProcess(path string) bool {
	return strings.Contains(path, in.pathMarker)
}

// IsContentEntry reports whether an upstream response is a renderable page
func IsContentEntry(status int, contentType string) bool {
	if status != http.StatusOK {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}

// Extract builds the Product schema for a document without modifying it.
// It returns nil and no error when the page has no product container.
func (in *Injector) Extract(doc *goquery.Document, pageURL string) (*schema.ProductSchema, error) {
	container := doc.Find(in.sel.Container).First()
	if container.Length() == 0 {
		return nil, nil
	}

	raw, ok := container.Attr(in.sel.Attribute)
	if !ok {
		return nil, ErrMissingAttribute
	}

	src, err := schema.ParseProductSource(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}

	title := extractTitle(doc)
	page := schema.Page{
		URL:         pageURL,
		Title:       title,
		Image:       in.extractImage(doc, pageURL),
		Description: in.extractDescription(doc, title),
	}

	return schema.Build(src, page, in.store, in.now()), nil
}

// Apply appends the JSON-LD script to the document head. Nothing is
// inserted unless every step succeeds. Applying twice adds two scripts.
func (in *Injector) Apply(doc *goquery.Document, pageURL string) (Outcome, error) {
	product, err := in.Extract(doc, pageURL)
	if err != nil {
		return OutcomeFailed, err
	}
	if product == nil {
		return OutcomeNoContainer, nil
	}

	head := doc.Find("head").First()
	if head.Length() == 0 {
		return OutcomeFailed, ErrNoHead
	}

	data, err := json.Marshal(product)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to encode schema: %w", err)
	}

	head.AppendNodes(scriptNode(data))
	return OutcomeInjected, nil
}

// Process parses a page, applies the schema and renders it back. On
// failure the error is logged and the original page is returned with it.
func (in *Injector) Process(page, pageURL string) (string, Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		in.log.Warn("schema error", zap.String("url", pageURL), zap.Error(err))
		return page, OutcomeFailed, fmt.Errorf("failed to parse HTML: %w", err)
	}

	outcome, err := in.Apply(doc, pageURL)
	if err != nil {
		in.log.Warn("schema error", zap.String("url", pageURL), zap.Error(err))
		return page, outcome, err
	}
	if outcome != OutcomeInjected {
		return page, outcome, nil
	}

	out, err := doc.Html()
	if err != nil {
		in.log.Warn("schema error", zap.String("url", pageURL), zap.Error(err))
		return page, OutcomeFailed, fmt.Errorf("failed to render HTML: %w", err)
	}

	in.log.Debug("schema injected", zap.String("url", pageURL))
	return out, OutcomeInjected, nil
}

func scriptNode(data []byte) *html.Node {
	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr:     []html.Attribute{{Key: "type", Val: ScriptType}},
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: string(data)})
	return script
}

func extractTitle(doc *goquery.Document) string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		return innerText(h1)
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

func (in *Injector) extractImage(doc *goquery.Document, pageURL string) string {
	src := strings.TrimSpace(doc.Find(in.sel.Image).First().AttrOr("src", ""))
	if src == "" {
		return ""
	}
	return resolveURL(pageURL, src)
}

func (in *Injector) extractDescription(doc *goquery.Document, title string) string {
	descr := doc.Find(in.sel.Description).First()
	if descr.Length() == 0 {
		return title
	}
	return strings.TrimSpace(strings.ReplaceAll(innerText(descr), "\n", " "))
}

// resolveURL makes ref absolute the way the DOM src property does
func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
