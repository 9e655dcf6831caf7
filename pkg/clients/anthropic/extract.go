package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/habitbloom/server/internal/domain/apperr"
	"github.com/habitbloom/server/internal/domain/models"
)

// ExtractJSONObject locates the first '{' in text and returns the span up to
// its structurally matching '}'. Braces inside JSON strings (and escaped
// quotes inside those strings) do not count toward the depth. This recovers
// an embedded object from prose like "Sure! {...} Hope that helps."
func ExtractJSONObject(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if start == -1 {
			if ch == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}

		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}

	if start == -1 {
		return "", &apperr.MalformedOutputError{Stage: apperr.StageBraceNotFound}
	}
	return "", &apperr.MalformedOutputError{
		Stage: apperr.StageJSONInvalid,
		Err:   fmt.Errorf("unbalanced braces from offset %d", start),
	}
}

// ParsePayload extracts, parses and shape-checks the report payload embedded
// in the model's free-form response text. Each failure stage carries its own
// typed error so callers can tell them apart.
func ParsePayload(text string) (*models.ReportPayload, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		var malformed *apperr.MalformedOutputError
		if errors.As(err, &malformed) {
			malformed.Raw = truncate(text)
		}
		return nil, err
	}

	var payload models.ReportPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &apperr.MalformedOutputError{Stage: apperr.StageJSONInvalid, Raw: truncate(text), Err: err}
	}

	if missing := missingFields(&payload); len(missing) > 0 {
		return nil, &apperr.MalformedOutputError{Stage: apperr.StageSchemaIncomplete, Missing: missing, Raw: truncate(text)}
	}

	return &payload, nil
}

// truncate bounds the raw model text kept on errors for logging. The cut
// backs up to a rune boundary so Korean output is never split mid-character.
func truncate(s string) string {
	const limit = 500
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// missingFields checks all ten leaf fields the prompt schema demands. A
// detail section also needs non-empty text and at least one action; an
// object that is present but hollow is as unusable as an absent one.
func missingFields(p *models.ReportPayload) []string {
	var missing []string

	for _, dim := range models.AnalysisDimensions {
		if p.Summary[dim] == "" {
			missing = append(missing, "summary."+dim)
		}

		detail, ok := p.Detail[dim]
		switch {
		case !ok || detail.Text == "":
			missing = append(missing, "detail."+dim)
		case len(detail.Actions) == 0:
			missing = append(missing, "detail."+dim+".actions")
		}
	}

	return missing
}
