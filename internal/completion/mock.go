package completion

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ent0n29/skilldash/internal/policy"
	"github.com/ent0n29/skilldash/internal/skill"
)

// MockCompleter provides deterministic local replies when no model is
// configured. It reads the last "User:" or "Transcript:" line of the prompt
// and answers with a keyword-based extraction in the same output protocol a
// hosted model is asked to follow.
type MockCompleter struct{}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

func (c *MockCompleter) Name() string { return "mock" }

func (c *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if transcript, ok := lastLabeledLine(prompt, "Transcript:"); ok {
		return mockVoiceReply(strings.Trim(transcript, `"`)), nil
	}
	msg, _ := lastLabeledLine(prompt, "User:")
	return mockChatReply(msg), nil
}

type catalogEntry struct {
	name     string
	category string
	pattern  *regexp.Regexp
}

var (
	skillCatalog = buildCatalog(map[string]string{
		"Next.js":    skill.CategoryFrontend,
		"React":      skill.CategoryFrontend,
		"Vue":        skill.CategoryFrontend,
		"Angular":    skill.CategoryFrontend,
		"Svelte":     skill.CategoryFrontend,
		"TypeScript": skill.CategoryLanguage,
		"JavaScript": skill.CategoryLanguage,
		"Go":         skill.CategoryLanguage,
		"Python":     skill.CategoryLanguage,
		"Rust":       skill.CategoryLanguage,
		"Java":       skill.CategoryLanguage,
		"Kotlin":     skill.CategoryLanguage,
		"Node.js":    skill.CategoryBackend,
		"Django":     skill.CategoryBackend,
		"Rails":      skill.CategoryBackend,
		"Spring":     skill.CategoryBackend,
		"PostgreSQL": skill.CategoryBackend,
		"Docker":     skill.CategoryInfrastructure,
		"Kubernetes": skill.CategoryInfrastructure,
		"Terraform":  skill.CategoryInfrastructure,
		"AWS":        skill.CategoryInfrastructure,
	})

	categoryKeywords = []struct {
		pattern  *regexp.Regexp
		category string
	}{
		{regexp.MustCompile(`(?i)フロントエンド|frontend|front-end`), skill.CategoryFrontend},
		{regexp.MustCompile(`(?i)バックエンド|backend|back-end|サーバーサイド`), skill.CategoryBackend},
		{regexp.MustCompile(`(?i)インフラ|infrastructure|infra\b`), skill.CategoryInfrastructure},
		{regexp.MustCompile(`(?i)プログラミング言語|言語|\blanguage\b`), skill.CategoryLanguage},
	}

	levelPattern   = regexp.MustCompile(`(?i)(?:level|レベル|lv\.?)\s*(?:to|を|は|:|=)?\s*([0-9]+)`)
	yearsPattern   = regexp.MustCompile(`(?i)([0-9]+)\s*(?:年|years?|yrs?)`)
	monthsPattern  = regexp.MustCompile(`(?i)([0-9]+)\s*(?:ヶ月|か月|カ月|ケ月|months?)`)
	levelWordTable = []struct {
		pattern *regexp.Regexp
		level   int
	}{
		{regexp.MustCompile(`(?i)エキスパート|expert`), 5},
		{regexp.MustCompile(`(?i)上級|advanced`), 4},
		{regexp.MustCompile(`(?i)中級|intermediate`), 3},
		{regexp.MustCompile(`(?i)初級|beginner`), 1},
	}
)

func buildCatalog(m map[string]string) []catalogEntry {
	out := make([]catalogEntry, 0, len(m))
	for name, category := range m {
		out = append(out, catalogEntry{
			name:     name,
			category: category,
			pattern:  regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9.])` + regexp.QuoteMeta(name) + `(?:$|[^A-Za-z0-9])`),
		})
	}
	// Longest names first so "JavaScript" wins over "Java".
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].name) == len(out[j].name) {
			return out[i].name < out[j].name
		}
		return len(out[i].name) > len(out[j].name)
	})
	return out
}

type mockFields struct {
	Name             *string `json:"name,omitempty"`
	Category         *string `json:"category,omitempty"`
	Level            *int    `json:"level,omitempty"`
	ExperienceMonths *int    `json:"experience_months,omitempty"`
}

func (f mockFields) empty() bool {
	return f.Name == nil && f.Category == nil && f.Level == nil && f.ExperienceMonths == nil
}

func extractMockFields(text string) mockFields {
	var f mockFields
	for _, e := range skillCatalog {
		if e.pattern.MatchString(text) {
			name, category := e.name, e.category
			f.Name, f.Category = &name, &category
			break
		}
	}
	for _, kw := range categoryKeywords {
		if kw.pattern.MatchString(text) {
			category := kw.category
			f.Category = &category
			break
		}
	}
	if m := levelPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			f.Level = &n
		}
	} else {
		for _, w := range levelWordTable {
			if w.pattern.MatchString(text) {
				n := w.level
				f.Level = &n
				break
			}
		}
	}

	months, found := 0, false
	if m := yearsPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			months += n * 12
			found = true
		}
	}
	if m := monthsPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			months += n
			found = true
		}
	}
	if found {
		f.ExperienceMonths = &months
	}
	return f
}

func mockChatReply(message string) string {
	f := extractMockFields(message)
	if f.empty() {
		return "Which skill would you like to add? Tell me its name, your level (1-5), the category and how long you have used it."
	}
	payload, _ := json.Marshal(f)
	return "Got it, I've filled that in.\n" + policy.PayloadMarker + "\n" + string(payload)
}

func mockVoiceReply(transcript string) string {
	f := extractMockFields(transcript)
	out := struct {
		Name             string `json:"name"`
		Category         string `json:"category"`
		Level            int    `json:"level"`
		ExperienceMonths int    `json:"experience_months"`
	}{
		Category: skill.CategoryLanguage,
		Level:    3,
	}
	if f.Name != nil {
		out.Name = *f.Name
	}
	if f.Category != nil {
		out.Category = *f.Category
	}
	if f.Level != nil {
		out.Level = *f.Level
	}
	if f.ExperienceMonths != nil {
		out.ExperienceMonths = *f.ExperienceMonths
	}
	payload, _ := json.Marshal(out)
	return string(payload)
}

func lastLabeledLine(prompt, label string) (string, bool) {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, label) {
			return strings.TrimSpace(strings.TrimPrefix(line, label)), true
		}
	}
	return "", false
}
