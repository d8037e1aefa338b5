package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/ent0n29/skilldash/internal/policy"
	"github.com/ent0n29/skilldash/internal/skill"
)

// FallbackReply is shown when the model emitted a payload with no text
// before it.
const FallbackReply = "Got it, I've updated the form with that."

// ParseChatCompletion splits a chat completion into its conversational
// reply and the partial update following the payload marker. It never
// fails: a payload that cannot be decoded yields no update.
func ParseChatCompletion(text string) Result {
	res, _ := parseChatCompletion(text)
	return res
}

// parseChatCompletion is ParseChatCompletion that also reports why a
// payload was dropped.
func parseChatCompletion(text string) (Result, error) {
	idx, end := policy.FindMarker(text)
	if idx < 0 {
		return Result{Reply: strings.TrimSpace(text)}, nil
	}

	reply := strings.TrimSpace(text[:idx])
	if reply == "" {
		reply = FallbackReply
	}
	rest := text[end:]

	obj, err := decodeFirstObject(rest)
	if err != nil {
		return Result{Reply: reply}, err
	}
	u := updateFromFields(obj)
	if u.IsEmpty() {
		return Result{Reply: reply}, nil
	}
	return Result{Reply: reply, Update: &u}, nil
}

// ParseVoiceCompletion decodes the first JSON object of a voice completion
// into a complete draft. Missing or invalid experience becomes 0 and the
// level is clamped into range; a missing name is an error.
func ParseVoiceCompletion(text string) (skill.Draft, error) {
	obj, err := decodeFirstObject(text)
	if err != nil {
		return skill.Draft{}, err
	}
	u := updateFromFields(obj)

	var d skill.Draft
	if u.Name == nil {
		return skill.Draft{}, &MalformedPayloadError{Reason: "name is missing or invalid"}
	}
	d.Name = *u.Name

	d.Category = skill.CategoryLanguage
	if u.Category != nil {
		d.Category = *u.Category
	}

	d.Level = skill.MinLevel
	if lvl, ok := coerceInt(obj["level"]); ok {
		d.Level = min(max(lvl, skill.MinLevel), skill.MaxLevel)
	}
	if u.ExperienceMonths != nil {
		d.ExperienceMonths = *u.ExperienceMonths
	}
	return d, nil
}

// decodeFirstObject finds the first balanced {...} region of text and
// decodes it.
func decodeFirstObject(text string) (map[string]any, error) {
	raw, err := firstBalancedObject(text)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &MalformedPayloadError{Reason: "payload is not valid JSON", Err: err}
	}
	return obj, nil
}

var errNoObject = errors.New("no JSON object found")

// firstBalancedObject scans for the first '{' and returns the text up to
// its matching '}', skipping braces inside JSON strings.
func firstBalancedObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", &MalformedPayloadError{Reason: "payload has no object", Err: errNoObject}
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", &MalformedPayloadError{Reason: "payload object is not closed", Err: errNoObject}
}

// updateFromFields keeps every recognized field that passes record
// validation and drops the others one by one.
func updateFromFields(obj map[string]any) skill.Update {
	var u skill.Update
	if s, ok := obj["name"].(string); ok {
		if v, err := skill.NormalizeName(s); err == nil {
			u.Name = &v
		}
	}
	if s, ok := obj["category"].(string); ok {
		if v, err := skill.NormalizeCategory(s); err == nil {
			v = canonicalCategory(v)
			u.Category = &v
		}
	}
	if n, ok := coerceInt(obj["level"]); ok && skill.ValidateLevel(n) == nil {
		u.Level = &n
	}
	if n, ok := coerceInt(obj["experience_months"]); ok && skill.ValidateExperience(n) == nil {
		u.ExperienceMonths = &n
	}
	return u
}

// coerceInt accepts JSON integers, integral floats and numeric strings.
func coerceInt(v any) (int, bool) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func canonicalCategory(v string) string {
	for _, c := range skill.Categories {
		if strings.EqualFold(c, v) {
			return c
		}
	}
	return v
}
