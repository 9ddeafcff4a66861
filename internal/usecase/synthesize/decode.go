package synthesize

import (
	"encoding/json"
	"strings"

	"github.com/clinevid/clinevid/internal/domain"
)

// mapOutput is the JSON shape requested from the map phase.
type mapOutput struct {
	Relevant bool           `json:"relevant"`
	Claims   []domain.Claim `json:"claims"`
}

// decodeMapOutput extracts the first well-formed JSON object from raw model
// output. Instruction models routinely wrap JSON in prose or markdown
// fences, so decoding scans for a balanced object instead of unmarshalling
// the whole response.
func decodeMapOutput(raw string) (mapOutput, error) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return mapOutput{}, &domain.ParseError{What: "map output", Raw: raw}
	}

	var out mapOutput
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return mapOutput{}, &domain.ParseError{What: "map output", Raw: obj}
	}
	return out, nil
}

// firstJSONObject returns the first balanced {...} region of s, respecting
// string literals and escapes.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
