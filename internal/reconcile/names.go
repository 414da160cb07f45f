package reconcile

import (
	"strings"
	"unicode"
)

// Target is a named binding surface such as a form or a canonical section
// map. Bind writes into it through ResolveFieldName.
type Target interface {
	Has(name string) bool
	Set(name string, value any)
}

// DateTarget is implemented by targets that hold date-typed fields.
type DateTarget interface {
	IsDate(name string) bool
}

// NameCandidates lists the spellings tried when binding a field, in order:
// exact, underscore/hyphen swapped, camelCase as kebab-case, lowercase.
// Duplicates are dropped.
func NameCandidates(name string) []string {
	candidates := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(candidate string) {
		if candidate == "" {
			return
		}
		if _, ok := seen[candidate]; ok {
			return
		}
		seen[candidate] = struct{}{}
		candidates = append(candidates, candidate)
	}

	add(name)
	switch {
	case strings.Contains(name, "_"):
		add(strings.ReplaceAll(name, "_", "-"))
	case strings.Contains(name, "-"):
		add(strings.ReplaceAll(name, "-", "_"))
	}
	add(camelToKebab(name))
	add(strings.ToLower(name))
	return candidates
}

// ResolveFieldName returns the first candidate spelling of name that the
// target recognises.
func ResolveFieldName(name string, has func(string) bool) (string, bool) {
	for _, candidate := range NameCandidates(name) {
		if has(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Bind writes values into target and returns the names it could not place.
// Unplaced names are not errors. Date fields get DD/MM/YYYY rewritten.
func Bind(values map[string]any, target Target) []string {
	var skipped []string
	dates, _ := target.(DateTarget)
	for _, name := range sortedKeys(values) {
		resolved, ok := ResolveFieldName(name, target.Has)
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		value := values[name]
		if dates != nil && dates.IsDate(resolved) {
			if s, isString := value.(string); isString {
				value = NormalizeDate(s)
			}
		}
		target.Set(resolved, value)
	}
	return skipped
}

func camelToKebab(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '-' && runes[i-1] != '_' {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func camelToSnake(name string) string {
	return strings.ReplaceAll(camelToKebab(name), "-", "_")
}

// fieldSet is a Target backed by a fixed list of field names.
type fieldSet struct {
	names  map[string]struct{}
	dates  map[string]struct{}
	values map[string]any
}

func newFieldSet(names, dates []string) *fieldSet {
	fs := &fieldSet{
		names:  make(map[string]struct{}, len(names)),
		dates:  make(map[string]struct{}, len(dates)),
		values: make(map[string]any),
	}
	for _, name := range names {
		fs.names[name] = struct{}{}
	}
	for _, name := range dates {
		fs.dates[name] = struct{}{}
	}
	return fs
}

func (f *fieldSet) Has(name string) bool {
	_, ok := f.names[name]
	return ok
}

// Set never replaces a non-blank value with a blank one.
func (f *fieldSet) Set(name string, value any) {
	if existing, ok := f.values[name]; ok && isBlank(value) && !isBlank(existing) {
		return
	}
	f.values[name] = value
}

func (f *fieldSet) IsDate(name string) bool {
	_, ok := f.dates[name]
	return ok
}
