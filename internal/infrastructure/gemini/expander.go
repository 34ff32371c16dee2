/*
Package gemini suggests additional marketplace search phrases for a product using the
Gemini API.
*/
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
)

// Expander defaults
const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 15 * time.Second
	maxPhraseWords = 6
)

const systemInstruction = `You help a procurement team search an Indian B2B supplier directory.
Given a product and its specifications, return alternative search phrases that suppliers
commonly use for the same product: trade names, synonyms and narrower category names.
Each phrase must be at most six words, contain no brand names and no prices.
Do not repeat the product name itself.`

// ErrMissingAPIKey is returned when no API key is configured
var ErrMissingAPIKey = errors.New("gemini API key is required")

// Config holds expander settings
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// contentGenerator is the part of the genai client the expander uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Expander implements domain.KeywordExpander
type Expander struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	log     logger.Logger
}

type expansionResponse struct {
	Phrases []string `json:"phrases"`
}

// NewExpander creates a Gemini-backed keyword expander
func NewExpander(ctx context.Context, cfg Config, log logger.Logger) (*Expander, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newExpander(client.Models, cfg, log), nil
}

func newExpander(models contentGenerator, cfg Config, log logger.Logger) *Expander {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Expander{models: models, model: cfg.Model, timeout: cfg.Timeout, log: log}
}

// Expand returns up to limit search phrases related to the requested product
func (e *Expander) Expand(ctx context.Context, spec *domain.RequirementSpec, limit int) ([]string, error) {
	if spec == nil || strings.TrimSpace(spec.ProductType) == "" || limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(buildPrompt(spec, limit), genai.RoleUser)}
	resp, err := e.models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	phrases, err := parsePhrases(resp.Text(), spec.ProductType, limit)
	if err != nil {
		return nil, err
	}

	e.log.Debug("Keyword expansion completed",
		logger.String("product", spec.ProductType),
		logger.Strings("phrases", phrases),
	)
	return phrases, nil
}

func buildPrompt(spec *domain.RequirementSpec, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s\n", spec.ProductType)
	for _, k := range spec.SpecificationKeys() {
		fmt.Fprintf(&sb, "%s: %s\n", k, spec.Specifications[k])
	}
	if spec.Location != "" {
		fmt.Fprintf(&sb, "Sourcing location: %s\n", spec.Location)
	}
	fmt.Fprintf(&sb, "Return at most %d phrases.", limit)
	return sb.String()
}

// parsePhrases decodes the model output and keeps short, distinct phrases that differ from the product
func parsePhrases(text, product string, limit int) ([]string, error) {
	var out expansionResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gemini JSON response: %w", err)
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(product)): true}
	phrases := make([]string, 0, limit)
	for _, p := range out.Phrases {
		p = strings.Join(strings.Fields(p), " ")
		key := strings.ToLower(p)
		if p == "" || seen[key] || len(strings.Fields(p)) > maxPhraseWords {
			continue
		}
		seen[key] = true
		phrases = append(phrases, p)
		if len(phrases) == limit {
			break
		}
	}
	return phrases, nil
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"phrases": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Alternative supplier search phrases, most relevant first.",
			},
		},
		Required: []string{"phrases"},
	}
}
