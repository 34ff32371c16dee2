package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/smartprocure/backend/internal/domain"
)

// Alias keys accepted for each RawListing field
var (
	nameKeys          = []string{domain.FieldName, "company_name", "company"}
	phoneKeys         = []string{domain.FieldPhone, "mobile_number", "mobile", "telephone"}
	emailKeys         = []string{domain.FieldEmail, "email_address", "mail"}
	locationFieldKeys = []string{domain.FieldLocation, "city", "address"}
	descriptionKeys   = []string{domain.FieldDescription, "details", "products", "snippet"}
	ratingKeys        = []string{domain.FieldRating, "stars", "review_score"}
	contactPersonKeys = []string{domain.FieldContactPerson, "contact_name", "contact"}
	urlKeys           = []string{domain.FieldURL, "source_url", "link", "profile_url"}
)

// Patterns used by the parsing rules
var (
	emailPattern          = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	phoneSplitPattern     = regexp.MustCompile(`[,;/|]|\bor\b`)
	emailSplitPattern     = regexp.MustCompile(`[,;|\s]+`)
	numericOnlyPattern    = regexp.MustCompile(`^[\d\s\-+.()]+$`)
	trailingJunkPattern   = regexp.MustCompile(`[\s,.\-:|]+$`)
	ratingOutOfPattern    = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:out\s+of|/)\s*(\d+(?:\.\d+)?)`)
	ratingPercentPattern  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*%$`)
	ratingStarsPattern    = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:stars?|★)$`)
	ratingReviewsPattern  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*\(\s*\d+[\d,]*\s*(?:ratings?|reviews?)?\s*\)$`)
	ratingBareNumberRegex = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	starGlyphsPattern     = regexp.MustCompile(`^[★☆\s]+$`)
)

// boilerplateNames are marketplace UI strings that scrapers sometimes pick up as company names
var boilerplateNames = []string{
	"contact supplier", "view mobile number", "view number", "get best price", "call now",
	"verified supplier", "trustseal verified", "all rights reserved", "terms of use",
	"privacy policy", "customer care", "find answers", "indiamart", "unknown", "n/a",
}

const (
	minNameLength        = 2
	maxDescriptionLength = 500
	recordIDLength       = 16
)

// RecordNormalizer converts untrusted RawListings into SupplierRecords
type RecordNormalizer struct{}

// NewRecordNormalizer creates a record normalizer
func NewRecordNormalizer() *RecordNormalizer {
	return &RecordNormalizer{}
}

// Normalize applies the field rules to raw. It returns false when the listing has no usable
// name or neither a valid phone nor email. It never panics and has no side effects.
func (n *RecordNormalizer) Normalize(raw domain.RawListing) (*domain.SupplierRecord, bool) {
	if raw == nil {
		return nil, false
	}

	name, ok := parseName(raw)
	if !ok {
		return nil, false
	}

	phone, hasPhone := parsePhone(raw)
	email, hasEmail := parseEmail(raw)
	if !hasPhone && !hasEmail {
		return nil, false
	}

	record := &domain.SupplierRecord{
		Name:          name,
		Contact:       domain.Contact{Phone: phone, Email: email},
		ContactPerson: parseTextField(raw, contactPersonKeys, 0),
		Location:      parseTextField(raw, locationFieldKeys, 0),
		Description:   parseTextField(raw, descriptionKeys, maxDescriptionLength),
		SourceURL:     parseURL(raw),
		SourceQuery:   cleanText(raw.Get(domain.FieldSourceQuery)),
	}
	if rating, ok := ParseRating(raw.Get(ratingKeys...)); ok {
		record.Rating = &rating
	}
	if record.SourceQuery != "" {
		record.SourceQueries = []string{record.SourceQuery}
	}
	record.ID = RecordID(name, record.Contact)

	return record, true
}

// NormalizeAll normalizes listings in order, dropping the ones without a usable name or contact.
// The second return value counts dropped listings.
func (n *RecordNormalizer) NormalizeAll(raws []domain.RawListing) ([]domain.SupplierRecord, int) {
	records := make([]domain.SupplierRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, ok := n.Normalize(raw)
		if !ok {
			dropped++
			continue
		}
		records = append(records, *rec)
	}
	return records, dropped
}

// RecordID derives the stable supplier id from the normalized name and best contact
func RecordID(name string, contact domain.Contact) string {
	key := normalizedName(name) + "|" + contact.Best()
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:recordIDLength]
}

// cleanText unescapes HTML entities, applies NFKC normalization and collapses whitespace
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = norm.NFKC.String(s)
	return collapseSpaces(s)
}

func parseName(raw domain.RawListing) (string, bool) {
	name := cleanText(raw.Get(nameKeys...))
	name = trailingJunkPattern.ReplaceAllString(name, "")
	if utf8.RuneCountInString(name) < minNameLength {
		return "", false
	}
	if numericOnlyPattern.MatchString(name) {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, b := range boilerplateNames {
		if lower == b || strings.HasPrefix(lower, b+" ") {
			return "", false
		}
	}
	return name, true
}

// parsePhone takes the first candidate number and normalizes Indian formats to E.164
func parsePhone(raw domain.RawListing) (string, bool) {
	value := cleanText(raw.Get(phoneKeys...))
	if value == "" {
		return "", false
	}
	for _, candidate := range phoneSplitPattern.Split(value, -1) {
		if phone, ok := normalizePhone(candidate); ok {
			return phone, true
		}
	}
	return "", false
}

func normalizePhone(s string) (string, bool) {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	digits := b.String()

	// 0-prefixed trunk numbers (09876543210, 091...) lose the trunk zero
	if len(digits) == 11 || len(digits) == 13 {
		digits = strings.TrimPrefix(digits, "0")
	}

	switch {
	case len(digits) == 10:
		return "+91" + digits, true
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return "+" + digits, true
	case len(digits) >= 10 && len(digits) <= 15:
		return "+" + digits, true
	default:
		return "", false
	}
}

func parseEmail(raw domain.RawListing) (string, bool) {
	value := strings.ToLower(cleanText(raw.Get(emailKeys...)))
	value = strings.TrimPrefix(value, "mailto:")
	if value == "" {
		return "", false
	}
	// Some listings carry several addresses
	for _, candidate := range emailSplitPattern.Split(value, -1) {
		if emailPattern.MatchString(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func parseTextField(raw domain.RawListing, keys []string, maxLen int) string {
	value := cleanText(raw.Get(keys...))
	if maxLen > 0 && utf8.RuneCountInString(value) > maxLen {
		runes := []rune(value)
		value = strings.TrimSpace(string(runes[:maxLen]))
	}
	return value
}

func parseURL(raw domain.RawListing) string {
	value := strings.TrimSpace(html.UnescapeString(raw.Get(urlKeys...)))
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return value
	}
	return ""
}

// ParseRating maps observed marketplace rating texts onto a 0-5 scale.
//
//	"4.3 out of 5", "4.3/5", "8/10" -> scaled to 5
//	"92%"                          -> 4.6
//	"4.3 stars", "4.3★"            -> 4.3
//	"4.3 (120 ratings)"            -> 4.3
//	"★★★★☆"                        -> 4
//	"4.3"                          -> 4.3 when within [0, 5]
//
// Anything else, including a value above its own scale ("150%", "12/10"), is reported as unknown.
// Results are rounded to 2 decimals.
func ParseRating(s string) (float64, bool) {
	s = strings.ToLower(cleanText(s))
	if s == "" {
		return 0, false
	}

	if starGlyphsPattern.MatchString(s) {
		filled := strings.Count(s, "★")
		if filled == 0 && !strings.Contains(s, "☆") {
			return 0, false
		}
		return clampRating(float64(filled)), true
	}

	if m := ratingOutOfPattern.FindStringSubmatch(s); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		scale, _ := strconv.ParseFloat(m[2], 64)
		if scale <= 0 || value > scale {
			return 0, false
		}
		return clampRating(value / scale * 5), true
	}

	if m := ratingPercentPattern.FindStringSubmatch(s); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		if value > 100 {
			return 0, false
		}
		return clampRating(value / 100 * 5), true
	}

	for _, p := range []*regexp.Regexp{ratingStarsPattern, ratingReviewsPattern} {
		if m := p.FindStringSubmatch(s); m != nil {
			value, _ := strconv.ParseFloat(m[1], 64)
			if value > maxRating {
				return 0, false
			}
			return clampRating(value), true
		}
	}

	if ratingBareNumberRegex.MatchString(s) {
		value, err := strconv.ParseFloat(s, 64)
		if err != nil || value < 0 || value > 5 {
			return 0, false
		}
		return clampRating(value), true
	}

	return 0, false
}

func clampRating(v float64) float64 {
	v = math.Max(0, math.Min(5, v))
	return math.Round(v*100) / 100
}
