package redaction

// Category identifies one kind of sensitive information. The string value
// doubles as the label the classifier is asked to answer with.
type Category string

const (
	CategoryName          Category = "name"
	CategoryEmail         Category = "email"
	CategoryPhone         Category = "phone"
	CategoryAddress       Category = "address"
	CategorySSN           Category = "ssn"
	CategoryCreditCard    Category = "credit_card"
	CategoryAPIKey        Category = "api_key"
	CategoryPassword      Category = "password"
	CategoryToken         Category = "token"
	CategoryIDNumber      Category = "id"
	CategoryDollarAmount  Category = "dollar"
	CategoryAccountNumber Category = "account"
)

// AllCategories fixes the order categories appear in prompts, so runs with
// the same settings build the same prompt.
var AllCategories = []Category{
	CategoryName,
	CategoryEmail,
	CategoryPhone,
	CategoryAddress,
	CategorySSN,
	CategoryCreditCard,
	CategoryAPIKey,
	CategoryPassword,
	CategoryToken,
	CategoryIDNumber,
	CategoryDollarAmount,
	CategoryAccountNumber,
}

// Setting is the caller-chosen state of one category for a request.
type Setting struct {
	Enabled     bool   `json:"enabled"`
	Placeholder string `json:"placeholder"`
}

// Settings maps every category to its per-request setting. Treated as
// immutable for the duration of a request.
type Settings map[Category]Setting

var defaultPlaceholders = map[Category]string{
	CategoryName:          "[NAME]",
	CategoryEmail:         "[EMAIL]",
	CategoryPhone:         "[PHONE]",
	CategoryAddress:       "[ADDRESS]",
	CategorySSN:           "[SSN]",
	CategoryCreditCard:    "[CC CARD]",
	CategoryAPIKey:        "[KEY]",
	CategoryPassword:      "[PASS]",
	CategoryToken:         "[TOKEN]",
	CategoryIDNumber:      "[ID]",
	CategoryDollarAmount:  "[$]",
	CategoryAccountNumber: "[ACCOUNT]",
}

// textDescriptions phrase each category for the text redaction prompt.
var textDescriptions = map[Category]string{
	CategoryName:          "Names (people's names, first names, last names, full names)",
	CategoryEmail:         "Email addresses (anything with @ symbol)",
	CategoryPhone:         "Phone numbers (any format)",
	CategoryAddress:       "Physical addresses (street addresses, cities, states, zip codes)",
	CategorySSN:           "Social Security Numbers",
	CategoryCreditCard:    "Credit card numbers",
	CategoryAPIKey:        "API keys",
	CategoryPassword:      "Passwords",
	CategoryToken:         "Tokens",
	CategoryIDNumber:      "ID numbers (user IDs, employee IDs, customer IDs, document IDs, verification IDs, any alphanumeric IDs with or without hyphens, formats like 'HC-9920-ALPHA', 'PASS-99283-TX')",
	CategoryDollarAmount:  "Dollar amounts (prices, salaries, costs, $ amounts)",
	CategoryAccountNumber: "Account numbers (bank accounts, customer accounts)",
}

// classifierDescriptions phrase each category for the per-fragment
// classifier. They carry the label-vs-value guidance the word-level OCR
// boxes need.
var classifierDescriptions = map[Category]string{
	CategoryName:          "name: Person's name (first name, last name, full name, or any part of a person's name) - NOT company names or organization names. If you see a first name, also classify the adjacent last name as 'name' even if it appears in a separate box.",
	CategoryEmail:         "email: Email address (anything with @ symbol)",
	CategoryPhone:         "phone: Phone number (any format)",
	CategoryAddress:       "address: Street address, city, state, zip code. Classify the actual address values, never labels like 'Residential Address:'.",
	CategorySSN:           "ssn: Social Security Number",
	CategoryCreditCard:    "credit_card: Credit card numbers and card details, including masked formats like 'Visa **** 9901'. Treat the card brand, the masked section and the last 4 digits together as credit_card so the entire card reference is redacted.",
	CategoryAPIKey:        "api_key: API keys",
	CategoryPassword:      "password: Password values (the actual password text, not the word 'Password' or labels like 'Password:').",
	CategoryToken:         "token: Token values, not the label 'Token'. Look for values next to, below or after labels like 'Token:', 'Access Token:'. Tokens can be long alphanumeric strings or JWTs (often starting with 'eyJ').",
	CategoryIDNumber:      "id: Identification numbers (user IDs, employee IDs, customer IDs, document IDs, verification IDs, alphanumeric IDs with or without hyphens like 'HC-9920-ALPHA', 'PASS-99283-TX') - NOT company names. When a label like 'Document ID:' and the value sit in separate boxes, classify the value box.",
	CategoryDollarAmount:  "dollar: Dollar amounts, prices, salaries",
	CategoryAccountNumber: "account: Account numbers, bank account numbers",
}

// DefaultSettings returns all categories enabled with their default
// placeholders, matching a fresh UI session.
func DefaultSettings() Settings {
	settings := make(Settings, len(AllCategories))
	for _, cat := range AllCategories {
		settings[cat] = Setting{
			Enabled:     true,
			Placeholder: defaultPlaceholders[cat],
		}
	}
	return settings
}

// ParseCategory maps a raw label onto a known category.
func ParseCategory(s string) (Category, bool) {
	cat := Category(s)
	if _, ok := defaultPlaceholders[cat]; ok {
		return cat, true
	}
	return "", false
}

// Placeholder returns the placeholder configured for cat, falling back to
// a generic marker for unknown entries.
func (s Settings) Placeholder(cat Category) string {
	if setting, ok := s[cat]; ok && setting.Placeholder != "" {
		return setting.Placeholder
	}
	if ph, ok := defaultPlaceholders[cat]; ok {
		return ph
	}
	return "[REDACTED]"
}

// Enabled reports whether cat participates in this request.
func (s Settings) Enabled(cat Category) bool {
	setting, ok := s[cat]
	return ok && setting.Enabled
}

// EnabledCategories returns the enabled categories in prompt order.
func (s Settings) EnabledCategories() []Category {
	var enabled []Category
	for _, cat := range AllCategories {
		if s.Enabled(cat) {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// ApplyPlaceholderOverrides rewrites placeholders from a config map keyed
// by category id. Unknown keys are ignored.
func (s Settings) ApplyPlaceholderOverrides(overrides map[string]string) {
	for key, placeholder := range overrides {
		cat, ok := ParseCategory(key)
		if !ok || placeholder == "" {
			continue
		}
		setting := s[cat]
		setting.Placeholder = placeholder
		s[cat] = setting
	}
}
