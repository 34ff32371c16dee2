package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/smartprocure/backend/internal/domain"
)

// Field name variants accepted from intake documents, canonical spelling first
var (
	productTypeKeys    = []string{"product_type", "product", "product_types", "productType", "item"}
	quantityKeys       = []string{"quantity", "qty"}
	specificationKeys  = []string{"specifications", "specs", "attributes"}
	timelineKeys       = []string{"delivery_timeline", "timeline", "deadline"}
	locationKeys       = []string{"location", "procurement_source_location", "source_location"}
	deliveryLocKeys    = []string{"delivery_location"}
	certificationKeys  = []string{"certifications", "quality_certification_filters"}
	budgetRangeKeys    = []string{"budget_range", "budgetRange"}
	sessionIDKeys      = []string{"session_id", "sessionId"}
	emptyAnswerAliases = map[string]bool{"none": true, "skip": true, "no": true, "n/a": true, "na": true}
)

// quantityPattern matches a leading number (with optional thousands separators) and a trailing unit
var quantityPattern = regexp.MustCompile(`^\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(.*?)\s*$`)

// budgetPattern matches "1000-5000", "1,000 to 5,000"
var budgetPattern = regexp.MustCompile(`^\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:-|to)\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*$`)

// NormalizeRequirements flattens an intake document into a RequirementSpec.
// It accepts the voice-intake schema as well as minimal fixtures and fails with ErrValidation
// when the product type is missing or a present field has an unusable value.
func NormalizeRequirements(doc map[string]any) (*domain.RequirementSpec, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", domain.ErrValidation)
	}

	spec := &domain.RequirementSpec{
		ProductType:      collapseSpaces(lookupString(doc, productTypeKeys...)),
		DeliveryTimeline: collapseSpaces(lookupString(doc, timelineKeys...)),
		Location:         collapseSpaces(lookupString(doc, locationKeys...)),
		DeliveryLocation: collapseSpaces(lookupString(doc, deliveryLocKeys...)),
		SessionID:        lookupString(doc, sessionIDKeys...),
	}

	if spec.ProductType == "" {
		return nil, fmt.Errorf("%w: product_type is required", domain.ErrValidation)
	}

	if raw, ok := lookup(doc, quantityKeys...); ok {
		qty, unit, err := parseQuantity(raw)
		if err != nil {
			return nil, err
		}
		spec.Quantity = qty
		spec.QuantityUnit = unit
	}

	if raw, ok := lookup(doc, specificationKeys...); ok {
		specs, err := parseSpecifications(raw)
		if err != nil {
			return nil, err
		}
		spec.Specifications = specs
	}
	if spec.Specifications == nil {
		spec.Specifications = map[string]string{}
	}

	budget, err := parseBudget(doc)
	if err != nil {
		return nil, err
	}
	spec.Budget = budget

	if raw, ok := lookup(doc, certificationKeys...); ok {
		spec.Certifications = parseCertifications(raw)
	}

	return spec, nil
}

// lookup returns the first present, non-nil value under any of the keys
func lookup(doc map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := doc[k]; ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func lookupString(doc map[string]any, keys ...string) string {
	v, ok := lookup(doc, keys...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

// stringify renders scalar intake values as text
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", t)
	}
}

func parseQuantity(raw any) (float64, string, error) {
	switch v := raw.(type) {
	case float64:
		return checkQuantity(v, "")
	case float32:
		return checkQuantity(float64(v), "")
	case int:
		return checkQuantity(float64(v), "")
	case int64:
		return checkQuantity(float64(v), "")
	case string:
		m := quantityPattern.FindStringSubmatch(v)
		if m == nil {
			return 0, "", fmt.Errorf("%w: quantity %q is not a number", domain.ErrValidation, v)
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, "", fmt.Errorf("%w: quantity %q: %v", domain.ErrValidation, v, err)
		}
		return checkQuantity(n, strings.ToLower(collapseSpaces(m[2])))
	default:
		return 0, "", fmt.Errorf("%w: unsupported quantity type %T", domain.ErrValidation, raw)
	}
}

func checkQuantity(n float64, unit string) (float64, string, error) {
	if n <= 0 {
		return 0, "", fmt.Errorf("%w: quantity must be greater than zero, got %v", domain.ErrValidation, n)
	}
	return n, unit, nil
}

func parseSpecifications(raw any) (map[string]string, error) {
	out := make(map[string]string)

	add := func(k string, v any) {
		key := strings.ToLower(collapseSpaces(k))
		val := collapseSpaces(stringify(v))
		if key == "" || val == "" {
			return
		}
		out[key] = val
	}

	switch v := raw.(type) {
	case map[string]any:
		for k, val := range v {
			if val != nil {
				add(k, val)
			}
		}
	case map[string]string:
		for k, val := range v {
			add(k, val)
		}
	case map[any]any:
		for k, val := range v {
			if val != nil {
				add(fmt.Sprintf("%v", k), val)
			}
		}
	default:
		return nil, fmt.Errorf("%w: specifications must be a mapping, got %T", domain.ErrValidation, raw)
	}
	return out, nil
}

func parseBudget(doc map[string]any) (*domain.BudgetRange, error) {
	var budget domain.BudgetRange
	found := false

	if raw, ok := lookup(doc, budgetRangeKeys...); ok {
		switch v := raw.(type) {
		case map[string]any:
			if minV, ok := v["min"]; ok {
				n, err := toNumber(minV)
				if err != nil {
					return nil, err
				}
				budget.Min, found = n, true
			}
			if maxV, ok := v["max"]; ok {
				n, err := toNumber(maxV)
				if err != nil {
					return nil, err
				}
				budget.Max, found = n, true
			}
		case []any:
			if len(v) != 2 {
				return nil, fmt.Errorf("%w: budget_range needs exactly two values", domain.ErrValidation)
			}
			lo, err := toNumber(v[0])
			if err != nil {
				return nil, err
			}
			hi, err := toNumber(v[1])
			if err != nil {
				return nil, err
			}
			budget, found = domain.BudgetRange{Min: lo, Max: hi}, true
		default:
			return nil, fmt.Errorf("%w: unsupported budget_range type %T", domain.ErrValidation, raw)
		}
	}

	if raw, ok := lookup(doc, "budget_min"); ok {
		n, err := toNumber(raw)
		if err != nil {
			return nil, err
		}
		budget.Min, found = n, true
	}
	if raw, ok := lookup(doc, "budget_max"); ok {
		n, err := toNumber(raw)
		if err != nil {
			return nil, err
		}
		budget.Max, found = n, true
	}

	if raw, ok := lookup(doc, "budget"); ok && !found {
		s := stringify(raw)
		if m := budgetPattern.FindStringSubmatch(s); m != nil {
			lo, _ := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			hi, _ := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
			budget, found = domain.BudgetRange{Min: lo, Max: hi}, true
		} else if n, err := toNumber(raw); err == nil {
			budget, found = domain.BudgetRange{Max: n}, true
		}
	}

	if !found {
		return nil, nil
	}
	if budget.Min < 0 || budget.Max < 0 {
		return nil, fmt.Errorf("%w: budget cannot be negative", domain.ErrValidation)
	}
	if budget.Max > 0 && budget.Min > budget.Max {
		return nil, fmt.Errorf("%w: budget min %.2f exceeds max %.2f", domain.ErrValidation, budget.Min, budget.Max)
	}
	return &budget, nil
}

func toNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", domain.ErrValidation, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unsupported numeric type %T", domain.ErrValidation, v)
	}
}

func parseCertifications(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			parts = append(parts, stringify(item))
		}
	case []string:
		parts = v
	default:
		parts = strings.Split(stringify(v), ",")
	}

	var out []string
	for _, p := range parts {
		p = collapseSpaces(p)
		if p == "" || emptyAnswerAliases[strings.ToLower(p)] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(multipleSpacesRegex.ReplaceAllString(s, " "))
}
