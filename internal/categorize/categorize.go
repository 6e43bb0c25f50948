// Package categorize holds the category vocabulary and the rules that
// normalise store names and suggest categories and tags for transactions.
// Rules are loaded from YAML; the embedded rules.yaml is the default set.
package categorize

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

const (
	FallbackExpense = "Other Expense"
	FallbackIncome  = "Other Income"
)

// StorePattern maps a lowercase substring to a clean store name.
type StorePattern struct {
	Pattern string `yaml:"pattern"`
	Name    string `yaml:"name"`
}

// StoreRule assigns Category when any pattern occurs in the store name.
type StoreRule struct {
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// KeywordRule assigns Category when any keyword occurs in the description.
// With MatchType set the bank's original transaction type is searched too.
type KeywordRule struct {
	Category  string   `yaml:"category"`
	Keywords  []string `yaml:"keywords"`
	MatchType bool     `yaml:"match_type"`
}

// AutoTagRules drives AutomaticTags.
type AutoTagRules struct {
	GolfStores       []string `yaml:"golf_stores"`
	GolfDescriptions []string `yaml:"golf_descriptions"`
	VacationStores   []string `yaml:"vacation_stores"`
	LargeThreshold   float64  `yaml:"large_threshold"`
}

// RuleSet is the top-level YAML structure.
type RuleSet struct {
	ExpenseCategories []string            `yaml:"expense_categories"`
	IncomeCategories  []string            `yaml:"income_categories"`
	StoreExact        map[string]string   `yaml:"store_exact"`
	StorePatterns     []StorePattern      `yaml:"store_patterns"`
	CategoryAliases   map[string]string   `yaml:"category_aliases"`
	StoreCategories   []StoreRule         `yaml:"store_categories"`
	KeywordCategories []KeywordRule       `yaml:"keyword_categories"`
	CategoryTags      map[string][]string `yaml:"category_tags"`
	AutoTags          AutoTagRules        `yaml:"auto_tags"`
}

// Categorizer applies a validated RuleSet. It is safe for concurrent use.
type Categorizer struct {
	rules     RuleSet
	canonical map[string]string // lowercase -> canonical category
	income    map[string]bool
	large     decimal.Decimal
}

var (
	merchantCodeRe = regexp.MustCompile(`\*[A-Za-z0-9]+`)
	storeNumberRe  = regexp.MustCompile(`#\d+`)
	trailingNumRe  = regexp.MustCompile(`\s+\d{4,}`)
	marketplaceRe  = regexp.MustCompile(`Mktpl[ace]*\s*`)
	paymentRe      = regexp.MustCompile(`Pmts?\s*`)
	suffixRe       = regexp.MustCompile(`(?i)\s+(inc|llc|corp|ltd|co|company)\.?$`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

var loadDefault = sync.OnceValues(func() (*Categorizer, error) {
	return NewFromYAML(embeddedRules)
})

// Default returns the categorizer built from the embedded rules.
func Default() (*Categorizer, error) {
	return loadDefault()
}

// LoadFromFile builds a categorizer from a rules file on disk.
func LoadFromFile(path string) (*Categorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFromFile: reading %s: %w", path, err)
	}
	return NewFromYAML(data)
}

// NewFromYAML parses and validates a rule set.
func NewFromYAML(data []byte) (*Categorizer, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("NewFromYAML: parsing rules (check syntax, indentation, and field names): %w", err)
	}
	return New(rs)
}

// New validates rs and returns a categorizer over it.
func New(rs RuleSet) (*Categorizer, error) {
	if len(rs.ExpenseCategories) == 0 || len(rs.IncomeCategories) == 0 {
		return nil, fmt.Errorf("New: expense and income categories are required")
	}
	c := &Categorizer{
		rules:     rs,
		canonical: make(map[string]string),
		income:    make(map[string]bool),
		large:     decimal.NewFromFloat(rs.AutoTags.LargeThreshold),
	}
	for _, cat := range rs.ExpenseCategories {
		c.canonical[strings.ToLower(cat)] = cat
	}
	for _, cat := range rs.IncomeCategories {
		if _, dup := c.canonical[strings.ToLower(cat)]; dup {
			return nil, fmt.Errorf("New: category %q is both income and expense", cat)
		}
		c.canonical[strings.ToLower(cat)] = cat
		c.income[cat] = true
	}

	check := func(where, cat string) error {
		if _, ok := c.canonical[strings.ToLower(cat)]; !ok {
			return fmt.Errorf("New: %s: unknown category %q", where, cat)
		}
		return nil
	}
	for alias, cat := range rs.CategoryAliases {
		if err := check("alias "+alias, cat); err != nil {
			return nil, err
		}
	}
	for i, r := range rs.StoreCategories {
		if err := check(fmt.Sprintf("store rule %d", i), r.Category); err != nil {
			return nil, err
		}
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("New: store rule %d (%s) has no patterns", i, r.Category)
		}
	}
	for i, r := range rs.KeywordCategories {
		if err := check(fmt.Sprintf("keyword rule %d", i), r.Category); err != nil {
			return nil, err
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("New: keyword rule %d (%s) has no keywords", i, r.Category)
		}
	}
	for i, p := range rs.StorePatterns {
		if strings.TrimSpace(p.Pattern) == "" || strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("New: store pattern %d is empty", i)
		}
	}
	return c, nil
}

// Categories returns every category, sorted.
func (c *Categorizer) Categories() []string {
	out := make([]string, 0, len(c.canonical))
	for _, cat := range c.canonical {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// ExpenseCategories returns the expense vocabulary in display order.
func (c *Categorizer) ExpenseCategories() []string {
	return append([]string(nil), c.rules.ExpenseCategories...)
}

// IncomeCategories returns the income vocabulary in display order.
func (c *Categorizer) IncomeCategories() []string {
	return append([]string(nil), c.rules.IncomeCategories...)
}

// NormalizeStore turns a raw statement merchant string into a display name.
// Exact abbreviations win, then known chains, then generic cleanup of
// merchant codes, store numbers and company suffixes.
func (c *Categorizer) NormalizeStore(store string) string {
	original := strings.TrimSpace(store)
	if original == "" {
		return ""
	}
	lower := strings.ToLower(original)

	if name, ok := c.rules.StoreExact[lower]; ok {
		return name
	}
	for _, p := range c.rules.StorePatterns {
		if strings.Contains(lower, p.Pattern) {
			return p.Name
		}
	}

	cleaned := merchantCodeRe.ReplaceAllString(original, "")
	cleaned = storeNumberRe.ReplaceAllString(cleaned, "")
	cleaned = trailingNumRe.ReplaceAllString(cleaned, "")
	cleaned = marketplaceRe.ReplaceAllString(cleaned, "")
	cleaned = paymentRe.ReplaceAllString(cleaned, "")
	for {
		next := suffixRe.ReplaceAllString(cleaned, "")
		if next == cleaned {
			break
		}
		cleaned = next
	}
	cleaned = strings.TrimSpace(spaceRe.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		cleaned = original
	}
	return cases.Title(language.English).String(cleaned)
}

// SuggestCategory tries store rules, then description keywords, and falls
// back to FallbackExpense.
func (c *Categorizer) SuggestCategory(store, description, originalType string) string {
	if cat, ok := c.categoryByStore(store); ok {
		return cat
	}
	if cat, ok := c.categoryByKeywords(description, originalType); ok {
		return cat
	}
	return FallbackExpense
}

func (c *Categorizer) categoryByStore(store string) (string, bool) {
	lower := strings.ToLower(store)
	for _, r := range c.rules.StoreCategories {
		if containsAny(lower, r.Patterns) {
			return r.Category, true
		}
	}
	return "", false
}

func (c *Categorizer) categoryByKeywords(description, originalType string) (string, bool) {
	desc := strings.ToLower(description)
	typ := strings.ToLower(originalType)
	for _, r := range c.rules.KeywordCategories {
		if containsAny(desc, r.Keywords) || (r.MatchType && containsAny(typ, r.Keywords)) {
			return r.Category, true
		}
	}
	return "", false
}

// NormalizeCategory maps aliases and case variants onto the vocabulary.
// Unknown categories come back title-cased; empty input is FallbackExpense.
func (c *Categorizer) NormalizeCategory(category string) string {
	lower := strings.ToLower(strings.TrimSpace(category))
	if lower == "" {
		return FallbackExpense
	}
	if cat, ok := c.rules.CategoryAliases[lower]; ok {
		return cat
	}
	if cat, ok := c.canonical[lower]; ok {
		return cat
	}
	return cases.Title(language.English).String(strings.TrimSpace(category))
}

// IsValidCategory reports whether category normalises into the vocabulary.
func (c *Categorizer) IsValidCategory(category string) bool {
	if strings.TrimSpace(category) == "" {
		return false
	}
	_, ok := c.canonical[strings.ToLower(c.NormalizeCategory(category))]
	return ok
}

// TypeForCategory returns income for income categories, expense otherwise.
func (c *Categorizer) TypeForCategory(category string) domain.TransactionType {
	if c.income[c.NormalizeCategory(category)] {
		return domain.Income
	}
	return domain.Expense
}

// AutomaticTags returns the tags applied without user input.
func (c *Categorizer) AutomaticTags(store, category string, amount decimal.Decimal, description string) []string {
	var tags []string
	lowerStore := strings.ToLower(store)
	lowerDesc := strings.ToLower(description)
	at := c.rules.AutoTags

	switch category {
	case "Subscriptions":
		tags = append(tags, "recurring")
	case "Rent":
		tags = append(tags, "recurring", "housing")
	}
	if containsAny(lowerStore, at.GolfStores) || containsAny(lowerDesc, at.GolfDescriptions) {
		tags = append(tags, "golf")
	}
	if containsAny(lowerStore, at.VacationStores) {
		tags = append(tags, "vacation")
	}
	if at.LargeThreshold > 0 && amount.GreaterThan(c.large) {
		tags = append(tags, "large")
	}
	if category == "Groceries" {
		tags = append(tags, "weekly")
	}
	return tags
}

// SuggestTags returns up to three tags for the category plus store hints,
// without duplicates.
func (c *Categorizer) SuggestTags(category, store string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	tags := c.rules.CategoryTags[category]
	if len(tags) > 3 {
		tags = tags[:3]
	}
	for _, t := range tags {
		add(t)
	}

	lower := strings.ToLower(store)
	if strings.Contains(lower, "restaurant") || strings.Contains(lower, "cafe") {
		add("dining")
	}
	if strings.Contains(lower, "gym") || strings.Contains(lower, "fitness") {
		add("fitness")
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
