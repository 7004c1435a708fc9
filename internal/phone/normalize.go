// Package phone turns the many spellings of a patient number into one join key.
//
// Outbound reminders address patients in E.164 ("+353871234567") while the
// WhatsApp webhook reports senders as bare digits ("353871234567"), and
// calendar titles are typed by staff in national format ("087 123 4567").
// Normalize collapses all of those onto the same key.
package phone

import "strings"

// countryCollapse maps "<country code>0" onto "<country code>" for numbers
// written with the trunk zero after the international prefix.
// Order matters: the first matching prefix wins.
var countryCollapse = []struct {
	prefix string
	code   string
}{
	{"310", "31"},   // Netherlands
	{"320", "32"},   // Belgium
	{"330", "33"},   // France
	{"340", "34"},   // Spain
	{"390", "39"},   // Italy
	{"400", "40"},   // Romania
	{"410", "41"},   // Switzerland
	{"430", "43"},   // Austria
	{"440", "44"},   // United Kingdom
	{"450", "45"},   // Denmark
	{"460", "46"},   // Sweden
	{"470", "47"},   // Norway
	{"480", "48"},   // Poland
	{"490", "49"},   // Germany
	{"3530", "353"}, // Ireland
}

// Normalize returns the comparison key for raw: digits only, trunk zero after
// a known country code collapsed, leading zeros removed. Invalid input yields "".
//
// The collapse pass is repeated until the key stops changing so that
// Normalize(Normalize(x)) == Normalize(x) holds for inputs such as
// "0049 030..." where stripping the international zeros exposes a new match.
func Normalize(raw string) string {
	key := Digits(raw)
	if key == "" {
		return ""
	}
	for {
		next := collapse(key)
		if next == key {
			return key
		}
		key = next
	}
}

func collapse(digits string) string {
	for _, c := range countryCollapse {
		if strings.HasPrefix(digits, c.prefix) {
			digits = c.code + digits[len(c.prefix):]
			break
		}
	}
	for len(digits) > 1 && digits[0] == '0' {
		digits = digits[1:]
	}
	return digits
}

// Digits strips every non-digit character.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripFormatting removes spaces, dashes and parentheses, keeping a leading +.
func StripFormatting(raw string) string {
	return formatting.Replace(strings.TrimSpace(raw))
}

var formatting = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")

// WithDefaultPrefix strips formatting and prepends defaultPrefix when raw
// carries no international "+".
func WithDefaultPrefix(raw, defaultPrefix string) string {
	cleaned := StripFormatting(raw)
	if cleaned == "" || strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	prefix := strings.TrimSpace(defaultPrefix)
	if prefix != "" && !strings.HasPrefix(prefix, "+") {
		prefix = "+" + prefix
	}
	return prefix + cleaned
}

// ToE164 resolves raw into a dialable "+<digits>" address, applying the
// default country prefix and the trunk-zero collapse.
func ToE164(raw, defaultPrefix string) string {
	key := Normalize(WithDefaultPrefix(raw, defaultPrefix))
	if key == "" {
		return ""
	}
	return "+" + key
}
