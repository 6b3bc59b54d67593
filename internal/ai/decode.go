package ai

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = eris.New("ai: no json object in reply")

// DecodeObject unmarshals the span from the first '{' to the last '}' of raw
// into v. Models often wrap JSON in prose or code fences.
func DecodeObject(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return eris.Wrap(err, "ai: decode json")
	}
	return nil
}

// ParseJudgement decodes a judge reply. A reply whose is_official is a
// string ("true"/"yes") is accepted.
func ParseJudgement(raw string) (Judgement, error) {
	var m map[string]any
	if err := DecodeObject(raw, &m); err != nil {
		return Judgement{}, err
	}
	j := Judgement{
		Official:   truthy(m["is_official"]),
		Confidence: number(m["confidence"]),
	}
	if r, ok := m["reason"].(string); ok {
		j.Reason = strings.TrimSpace(r)
	}
	if j.Confidence < 0 {
		j.Confidence = 0
	}
	if j.Confidence > 1 {
		j.Confidence = 1
	}
	return j, nil
}

// ParseFields decodes an extraction reply into the requested fields. Keys
// outside the requested set are dropped; null, empty and "null" values map
// to nil.
func ParseFields(raw string, requested []model.Field) (map[model.Field]*string, error) {
	var m map[string]any
	if err := DecodeObject(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[model.Field]*string, len(requested))
	for _, f := range requested {
		out[f] = stringValue(m[string(f)])
	}
	return out, nil
}

func stringValue(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "不明", "なし":
		return nil
	}
	return &s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "はい":
			return true
		}
	}
	return false
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
