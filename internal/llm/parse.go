package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
)

// Intent is what an operator reply says about the pending record.
type Intent struct {
	Category      *model.Category
	Name          string
	Reason        string
	NoInformation bool
}

// cleanMarkdownWrapper strips a ```json fence and any prose around the
// outermost JSON value.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.IndexAny(content, "[{")
	if start < 0 {
		return content
	}
	closer := byte('}')
	if content[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(content, closer)
	if end < start {
		return content
	}
	return content[start : end+1]
}

// parseNames reads a JSON list of names, dropping blanks and duplicates.
func parseNames(content string) ([]string, error) {
	var raw []string
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &raw); err != nil {
		return nil, fmt.Errorf("%w: names: %v", common.ErrExtractionMalformed, err)
	}

	seen := make(map[string]bool, len(raw))
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.Join(strings.Fields(n), " ")
		key := common.Fold(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, n)
	}
	return names, nil
}

func nullable(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
		return ""
	}
	return v
}

// parseIntent reads {"name", "payment_type"} or {"no_information"}. A
// payment type outside the category labels is ignored.
func parseIntent(content string) (Intent, error) {
	var raw struct {
		NoInformation json.RawMessage `json:"no_information"`
		Name          *string         `json:"name"`
		PaymentType   *string         `json:"payment_type"`
	}
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &raw); err != nil {
		return Intent{}, fmt.Errorf("%w: intent: %v", common.ErrExtractionMalformed, err)
	}

	if len(raw.NoInformation) > 0 && string(raw.NoInformation) != "null" {
		var reason string
		if err := json.Unmarshal(raw.NoInformation, &reason); err != nil {
			reason = string(raw.NoInformation)
		}
		return Intent{NoInformation: true, Reason: reason}, nil
	}

	intent := Intent{Name: nullable(raw.Name)}
	if pt := nullable(raw.PaymentType); pt != "" {
		if c, ok := model.ParseCategory(pt); ok && c.Actionable() {
			intent.Category = &c
		}
	}
	return intent, nil
}
