// Package skills normalizes skill tokens and matches them with fuzzy
// containment, so that "react.js" and "React" name the same competency.
package skills

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/pavelanni/interviewer/internal/model"
)

var categories = map[string]model.SkillCategory{
	"go": model.CategoryLanguage, "golang": model.CategoryLanguage, "python": model.CategoryLanguage,
	"java": model.CategoryLanguage, "javascript": model.CategoryLanguage, "typescript": model.CategoryLanguage,
	"rust": model.CategoryLanguage, "c++": model.CategoryLanguage, "c#": model.CategoryLanguage,
	"sql": model.CategoryLanguage, "kotlin": model.CategoryLanguage, "ruby": model.CategoryLanguage,
	"react": model.CategoryFramework, "django": model.CategoryFramework, "spring": model.CategoryFramework,
	"flask": model.CategoryFramework, "angular": model.CategoryFramework, "vue": model.CategoryFramework,
	"rails": model.CategoryFramework, "express": model.CategoryFramework,
	"docker": model.CategoryTool, "kubernetes": model.CategoryTool, "git": model.CategoryTool,
	"terraform": model.CategoryTool, "jenkins": model.CategoryTool, "postgresql": model.CategoryTool,
	"redis": model.CategoryTool, "kafka": model.CategoryTool, "aws": model.CategoryTool,
	"communication": model.CategorySoft, "leadership": model.CategorySoft, "teamwork": model.CategorySoft,
	"mentoring": model.CategorySoft, "collaboration": model.CategorySoft, "articulation": model.CategorySoft,
	"concurrency": model.CategoryConcept, "caching": model.CategoryConcept, "indexing": model.CategoryConcept,
	"microservices": model.CategoryConcept, "hashmap": model.CategoryConcept, "recursion": model.CategoryConcept,
}

// Fold case-folds raw and collapses whitespace, keeping symbol characters
// that carry meaning in skill names (c++, c#, node.js, o(n)).
func Fold(raw string) string {
	s := cases.Fold().String(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '"' || r == '\''
	})
}

// Normalize turns a raw token into a Skill with a best-effort category.
func Normalize(raw string) model.Skill {
	tok := Fold(raw)
	cat, ok := categories[tok]
	if !ok {
		cat = categories[strings.TrimSuffix(strings.TrimSuffix(tok, ".js"), "js")]
	}
	if cat == "" && tok != "" {
		cat = model.CategoryTechnical
	}
	return model.Skill{Token: tok, Category: cat}
}

// Union merges token sets, normalizing and de-duplicating while keeping
// first-seen order. Empty tokens are dropped.
func Union(sets ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, raw := range set {
			tok := Fold(raw)
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// Match reports whether a and b name the same skill under fuzzy containment.
func Match(a, b string) bool {
	a, b = Fold(a), Fold(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// HasFuzzy reports whether any element of set fuzzy-matches token.
func HasFuzzy(set []string, token string) bool {
	_, ok := BestMatch(set, token)
	return ok
}

// BestMatch returns the element of set that fuzzy-matches token. When
// several match, the longest wins; equal lengths fall back to set order.
func BestMatch(set []string, token string) (string, bool) {
	best := ""
	found := false
	for _, el := range set {
		if !Match(el, token) {
			continue
		}
		if !found || len(Fold(el)) > len(Fold(best)) {
			best = el
			found = true
		}
	}
	return best, found
}

// Contains reports exact (case-folded) membership.
func Contains(set []string, token string) bool {
	tok := Fold(token)
	for _, el := range set {
		if Fold(el) == tok {
			return true
		}
	}
	return false
}

// Add appends token unless an equal (case-folded) element exists.
func Add(set []string, token string) []string {
	if Contains(set, token) || Fold(token) == "" {
		return set
	}
	return append(set, Fold(token))
}

// Remove drops every element equal (case-folded) to token.
func Remove(set []string, token string) []string {
	tok := Fold(token)
	out := make([]string, 0, len(set))
	for _, el := range set {
		if Fold(el) != tok {
			out = append(out, el)
		}
	}
	return out
}

// Missing returns elements of want that do not fuzzy-match anything in have.
func Missing(want, have []string) []string {
	var out []string
	for _, w := range want {
		if !HasFuzzy(have, w) {
			out = append(out, w)
		}
	}
	return out
}

// Covered returns elements of want that fuzzy-match something in have.
func Covered(want, have []string) []string {
	var out []string
	for _, w := range want {
		if HasFuzzy(have, w) {
			out = append(out, w)
		}
	}
	return out
}
