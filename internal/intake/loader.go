// Package intake reads procurement requirement documents from JSON or YAML files.
package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/smartprocure/backend/internal/domain"
)

// Document formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// wrapperKeys are envelope keys some exports nest the requirements under
var wrapperKeys = []string{"requirements", "procurement_requirements"}

// ErrDocumentNotFound is returned when the requirements file does not exist
var ErrDocumentNotFound = errors.New("requirements document not found")

// Load reads a requirements document. The format follows the file extension; files without a
// known extension are sniffed.
func Load(fsys afero.Fs, path string) (map[string]any, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(data, formatFromPath(path))
}

// Decode parses a requirements document. An empty format sniffs JSON by its leading brace.
func Decode(data []byte, format string) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty requirements document", domain.ErrValidation)
	}
	if format == "" {
		format = FormatYAML
		if trimmed[0] == '{' {
			format = FormatJSON
		}
	}

	var doc map[string]any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrValidation, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: invalid YAML: %v", domain.ErrValidation, err)
		}
	default:
		return nil, fmt.Errorf("unsupported requirements format %q", format)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: requirements document is not a mapping", domain.ErrValidation)
	}
	return unwrap(doc), nil
}

// unwrap returns the nested requirements mapping when the document is an envelope around it
func unwrap(doc map[string]any) map[string]any {
	if len(doc) != 1 {
		return doc
	}
	for _, key := range wrapperKeys {
		if inner, ok := doc[key].(map[string]any); ok {
			return inner
		}
	}
	return doc
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}
