package skill

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FieldError reports an invalid record field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NormalizeName trims the name and checks its length.
func NormalizeName(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &FieldError{Field: "name", Reason: "is required"}
	}
	if utf8.RuneCountInString(v) > MaxNameLen {
		return "", &FieldError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLen)}
	}
	return v, nil
}

// NormalizeCategory trims the category and checks its length.
func NormalizeCategory(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &FieldError{Field: "category", Reason: "is required"}
	}
	if utf8.RuneCountInString(v) > MaxCategoryLen {
		return "", &FieldError{Field: "category", Reason: fmt.Sprintf("must be at most %d characters", MaxCategoryLen)}
	}
	return v, nil
}

func ValidateLevel(v int) error {
	if v < MinLevel || v > MaxLevel {
		return &FieldError{Field: "level", Reason: fmt.Sprintf("must be between %d and %d", MinLevel, MaxLevel)}
	}
	return nil
}

func ValidateExperience(v int) error {
	if v < 0 {
		return &FieldError{Field: "experience_months", Reason: "must be non-negative"}
	}
	return nil
}

// Normalize validates every field of d and returns the trimmed draft.
func (d Draft) Normalize() (Draft, error) {
	var err error
	if d.Name, err = NormalizeName(d.Name); err != nil {
		return Draft{}, err
	}
	if d.Category, err = NormalizeCategory(d.Category); err != nil {
		return Draft{}, err
	}
	if err := ValidateLevel(d.Level); err != nil {
		return Draft{}, err
	}
	if err := ValidateExperience(d.ExperienceMonths); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Normalize validates every present field of u with the same rules as a
// full record and returns the trimmed update.
func (u Update) Normalize() (Update, error) {
	out := u
	if u.Name != nil {
		v, err := NormalizeName(*u.Name)
		if err != nil {
			return Update{}, err
		}
		out.Name = &v
	}
	if u.Category != nil {
		v, err := NormalizeCategory(*u.Category)
		if err != nil {
			return Update{}, err
		}
		out.Category = &v
	}
	if u.Level != nil {
		if err := ValidateLevel(*u.Level); err != nil {
			return Update{}, err
		}
	}
	if u.ExperienceMonths != nil {
		if err := ValidateExperience(*u.ExperienceMonths); err != nil {
			return Update{}, err
		}
	}
	return out, nil
}
