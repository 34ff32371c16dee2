package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/smartprocure/backend/internal/domain"
)

// Selectors are the CSS selectors used to pick supplier cards and their fields out of a result page.
// Field selectors are evaluated relative to the card; several comma-separated alternatives are allowed.
type Selectors struct {
	Card          string `mapstructure:"card"`
	Name          string `mapstructure:"name"`
	Phone         string `mapstructure:"phone"`
	Email         string `mapstructure:"email"`
	Location      string `mapstructure:"location"`
	Description   string `mapstructure:"description"`
	Rating        string `mapstructure:"rating"`
	ContactPerson string `mapstructure:"contact_person"`
	Link          string `mapstructure:"link"`
}

// DefaultSelectors match the supplier cards of the IndiaMART directory search page
var DefaultSelectors = Selectors{
	Card:          "div.card, div.lst, li.lst, div.supplier-card, [data-supplier]",
	Name:          ".clg, .clname, .companyname, .company-name, .supplier-name, h2, h3",
	Phone:         ".pns_h, .mobile, .phone, .contact-number, [data-phone]",
	Email:         ".email, [data-email]",
	Location:      ".newLocationUi, .clr5, .city, .location, .address",
	Description:   ".prd-name, .desc, .description, .prod-desc, p",
	Rating:        ".bo.color, .rating, .stars, [data-rating]",
	ContactPerson: ".cperson, .contact-person",
	Link:          "a.cardlinks, a.clname, a[href]",
}

// Contact patterns for the text fallback, tolerant of spacing in Indian mobile numbers
var (
	fallbackPhonePattern = regexp.MustCompile(`(?:\+91[\s-]?)?(?:0[\s-]?)?[6-9]\d{4}[\s-]?\d{5}`)
	fallbackEmailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// fallbackNameSelectors locate company names on pages whose card layout is not recognized
const fallbackNameSelectors = "div.clg, a.clname, [class*=companyname], [class*=company-name], h2[class*=name], h3[class*=name]"

// maxFallbackAncestors bounds how far up from a company name the fallback looks for contact details
const maxFallbackAncestors = 3

// Parser turns marketplace response bodies into raw listings
type Parser struct {
	selectors Selectors
}

// NewParser creates a parser. Empty selector fields fall back to DefaultSelectors.
func NewParser(selectors Selectors) *Parser {
	def := DefaultSelectors
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&selectors.Card, def.Card)
	fill(&selectors.Name, def.Name)
	fill(&selectors.Phone, def.Phone)
	fill(&selectors.Email, def.Email)
	fill(&selectors.Location, def.Location)
	fill(&selectors.Description, def.Description)
	fill(&selectors.Rating, def.Rating)
	fill(&selectors.ContactPerson, def.ContactPerson)
	fill(&selectors.Link, def.Link)
	return &Parser{selectors: selectors}
}

// Parse detects the body format and extracts listings. JSON bodies (an array of objects, or an
// object with a "listings" or "results" array) pass through; anything else is parsed as HTML.
func (p *Parser) Parse(body []byte, pageURL string) ([]domain.RawListing, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		return parseJSON(trimmed)
	}
	return p.parseHTML(trimmed, pageURL)
}

func parseJSON(body []byte) ([]domain.RawListing, error) {
	var items []map[string]any
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode listings: %w", err)
		}
	} else {
		var envelope struct {
			Listings []map[string]any `json:"listings"`
			Results  []map[string]any `json:"results"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode listings: %w", err)
		}
		items = envelope.Listings
		if len(items) == 0 {
			items = envelope.Results
		}
	}

	listings := make([]domain.RawListing, 0, len(items))
	for _, item := range items {
		l := make(domain.RawListing, len(item))
		for k, v := range item {
			if s := scalarString(v); s != "" {
				l[k] = s
			}
		}
		if len(l) > 0 {
			listings = append(listings, l)
		}
	}
	return listings, nil
}

// scalarString renders JSON scalars as text; nested values are dropped
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func (p *Parser) parseHTML(body []byte, pageURL string) ([]domain.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	base, _ := url.Parse(pageURL)

	var listings []domain.RawListing
	doc.Find(p.selectors.Card).Each(func(_ int, card *goquery.Selection) {
		if l := p.extractCard(card, base); len(l) > 0 {
			listings = append(listings, l)
		}
	})
	if len(listings) > 0 {
		return listings, nil
	}

	return fallbackExtract(doc, base), nil
}

func (p *Parser) extractCard(card *goquery.Selection, base *url.URL) domain.RawListing {
	l := domain.RawListing{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			l[key] = value
		}
	}

	set(domain.FieldName, firstText(card, p.selectors.Name))
	set(domain.FieldPhone, firstValue(card, p.selectors.Phone, "data-phone"))
	if l[domain.FieldPhone] == "" {
		set(domain.FieldPhone, hrefValue(card, `a[href^="tel:"]`, "tel:"))
	}
	set(domain.FieldEmail, firstValue(card, p.selectors.Email, "data-email"))
	if l[domain.FieldEmail] == "" {
		set(domain.FieldEmail, hrefValue(card, `a[href^="mailto:"]`, "mailto:"))
	}
	set(domain.FieldLocation, firstText(card, p.selectors.Location))
	set(domain.FieldDescription, firstText(card, p.selectors.Description))
	set(domain.FieldRating, firstValue(card, p.selectors.Rating, "data-rating"))
	set(domain.FieldContactPerson, firstText(card, p.selectors.ContactPerson))
	set(domain.FieldURL, resolveLink(card, p.selectors.Link, base))

	// Cards without a dedicated contact element sometimes carry it in free text
	if l[domain.FieldPhone] == "" {
		set(domain.FieldPhone, fallbackPhonePattern.FindString(card.Text()))
	}
	if l[domain.FieldEmail] == "" {
		set(domain.FieldEmail, fallbackEmailPattern.FindString(card.Text()))
	}

	if l[domain.FieldName] == "" {
		return nil
	}
	return l
}

// fallbackExtract finds company names with loose selectors and takes the nearest phone and email
// found in the surrounding markup. The search never climbs into an element that also holds
// another company name, so contacts of neighbouring suppliers are not picked up.
func fallbackExtract(doc *goquery.Document, base *url.URL) []domain.RawListing {
	var listings []domain.RawListing
	seen := make(map[string]bool)

	doc.Find(fallbackNameSelectors).Each(func(_ int, s *goquery.Selection) {
		name := strings.Join(strings.Fields(s.Text()), " ")
		if len(name) < 3 || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true

		l := domain.RawListing{domain.FieldName: name}
		scope := s
		for i := 0; i < maxFallbackAncestors; i++ {
			if i > 0 && distinctNames(scope) > 1 {
				break
			}
			text := scope.Text()
			if l[domain.FieldPhone] == "" {
				if m := fallbackPhonePattern.FindString(text); m != "" {
					l[domain.FieldPhone] = m
				}
			}
			if l[domain.FieldEmail] == "" {
				if m := fallbackEmailPattern.FindString(text); m != "" {
					l[domain.FieldEmail] = m
				}
			}
			if l[domain.FieldPhone] != "" && l[domain.FieldEmail] != "" {
				break
			}
			scope = scope.Parent()
		}
		if href, ok := s.Attr("href"); ok {
			if u := resolve(base, href); u != "" {
				l[domain.FieldURL] = u
			}
		}
		listings = append(listings, l)
	})
	return listings
}

// distinctNames counts the different company names inside scope
func distinctNames(scope *goquery.Selection) int {
	names := make(map[string]bool)
	scope.Find(fallbackNameSelectors).Each(func(_ int, s *goquery.Selection) {
		if name := strings.ToLower(strings.Join(strings.Fields(s.Text()), " ")); name != "" {
			names[name] = true
		}
	})
	return len(names)
}

func firstText(s *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

// firstValue prefers the attribute (for data-* elements) and falls back to the element text
func firstValue(s *goquery.Selection, selector, attr string) string {
	el := s.Find(selector).First()
	if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return strings.Join(strings.Fields(el.Text()), " ")
}

func hrefValue(s *goquery.Selection, selector, scheme string) string {
	href, ok := s.Find(selector).First().Attr("href")
	if !ok {
		return ""
	}
	value := strings.TrimPrefix(href, scheme)
	if i := strings.IndexByte(value, '?'); i >= 0 {
		value = value[:i]
	}
	return value
}

// resolveLink returns the first matching link that resolves to an http(s) URL
func resolveLink(s *goquery.Selection, selector string, base *url.URL) string {
	var link string
	s.Find(selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href, ok := a.Attr("href"); ok {
			link = resolve(base, href)
		}
		return link == ""
	})
	return link
}

// resolve makes href absolute against base and keeps only http(s) links
func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
