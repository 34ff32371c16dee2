package domain

import (
	"strings"
	"time"
)

// Query is one marketplace search phrase with its relevance weight
type Query struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"` // 1.0 for the most specific query, descending after
}

// Well-known RawListing keys. Scrapers may add any other key.
const (
	FieldName          = "name"
	FieldPhone         = "phone"
	FieldEmail         = "email"
	FieldLocation      = "location"
	FieldDescription   = "description"
	FieldRating        = "rating"
	FieldURL           = "url"
	FieldContactPerson = "contact_person"
	FieldSourceQuery   = "source_query"
)

// RawListing is an untrusted, partially populated supplier entry as scraped from the marketplace
type RawListing map[string]string

// Get returns the first non-blank value found under any of the given keys
func (l RawListing) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(l[k]); v != "" {
			return v
		}
	}
	return ""
}

// IdentityKey identifies a listing before normalization (lower-cased name, phone digits, email)
func (l RawListing) IdentityKey() string {
	name := strings.Join(strings.Fields(strings.ToLower(l.Get(FieldName, "company_name", "company"))), " ")

	var digits strings.Builder
	for _, c := range l.Get(FieldPhone, "mobile_number", "mobile", "telephone") {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	email := strings.ToLower(l.Get(FieldEmail, "email_address", "mail"))
	return name + "|" + digits.String() + "|" + email
}

// Contact holds the reachable channels of a supplier
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// HasPhone reports whether a phone number is present
func (c Contact) HasPhone() bool { return c.Phone != "" }

// HasEmail reports whether an email address is present
func (c Contact) HasEmail() bool { return c.Email != "" }

// Best returns the preferred contact string (phone first)
func (c Contact) Best() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.Email
}

// SupplierRecord is a normalized supplier discovered by one or more queries
type SupplierRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Contact       Contact  `json:"contact"`
	ContactPerson string   `json:"contact_person,omitempty"`
	Location      string   `json:"location,omitempty"`
	Description   string   `json:"description"`
	Rating        *float64 `json:"rating,omitempty"` // 0-5, nil when unknown
	SourceURL     string   `json:"source_url,omitempty"`
	SourceQuery   string   `json:"source_query"`
	SourceQueries []string `json:"source_queries,omitempty"` // provenance
}

// ScoreBreakdown explains how a supplier's score was composed
type ScoreBreakdown struct {
	Rating  float64 `json:"rating"`
	Contact float64 `json:"contact"`
	Match   float64 `json:"match"`
}

// ScoredSupplier is a supplier record with its ranking score (0-100)
type ScoredSupplier struct {
	SupplierRecord
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"score_breakdown"`
}

// RankedShortlist is the deduplicated, score-ordered output of a discovery run
type RankedShortlist struct {
	Suppliers []ScoredSupplier `json:"suppliers"`
}

// Len returns the number of suppliers in the shortlist
func (s RankedShortlist) Len() int { return len(s.Suppliers) }

// Records returns the supplier records without scores, in ranked order
func (s RankedShortlist) Records() []SupplierRecord {
	out := make([]SupplierRecord, 0, len(s.Suppliers))
	for _, sup := range s.Suppliers {
		out = append(out, sup.SupplierRecord)
	}
	return out
}

// ShortlistArtifact is the persisted, immutable result of a discovery run
type ShortlistArtifact struct {
	Name           string           `json:"name"`
	CreatedAt      time.Time        `json:"created_at"`
	Requirements   *RequirementSpec `json:"requirements,omitempty"`
	Queries        []Query          `json:"queries,omitempty"`
	Partial        bool             `json:"partial,omitempty"`
	TotalSuppliers int              `json:"total_suppliers"`
	Suppliers      []ScoredSupplier `json:"suppliers"`
}
