// Package intent maps patient replies onto the closed set of reminder intents.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classified meaning of an inbound reply.
type Intent int

const (
	Unknown Intent = iota
	Confirm
	Reschedule
)

func (i Intent) String() string {
	switch i {
	case Confirm:
		return "confirm"
	case Reschedule:
		return "reschedule"
	default:
		return "unknown"
	}
}

// Parse turns a fixed action name ("confirm", "reschedule") into an Intent.
func Parse(action string) Intent {
	switch normalize(action) {
	case "confirm":
		return Confirm
	case "reschedule":
		return Reschedule
	default:
		return Unknown
	}
}

// Rule pairs a keyword pattern with the intent it signals.
type Rule struct {
	Intent  Intent
	Pattern *regexp.Regexp
}

// Keywords builds a word-boundary rule matching any of the given phrases.
func Keywords(in Intent, phrases ...string) Rule {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(p)))
	}
	return Rule{
		Intent:  in,
		Pattern: regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	exact map[string]Intent
	rules []Rule
}

// NewClassifier builds a classifier with the button payload fast path and
// the given ordered rules.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{
		exact: map[string]Intent{
			"confirm":    Confirm,
			"reschedule": Reschedule,
		},
		rules: rules,
	}
}

var defaultClassifier = NewClassifier(
	Keywords(Confirm, "confirm", "yes", "ok", "okay", "sure", "yep", "yeah", "correct"),
	Keywords(Reschedule, "reschedule", "change", "move", "different time", "another time",
		"no", "nope", "cancel", "can't make it", "not coming"),
)

// Default returns the canonical two-intent classifier. Cancellation phrases
// map to Reschedule: no reply ever deletes an appointment.
func Default() *Classifier {
	return defaultClassifier
}

// Classify runs the default classifier.
func Classify(text string) Intent {
	return defaultClassifier.Classify(text)
}

// Classify maps free text or a button payload to an Intent.
func (c *Classifier) Classify(text string) Intent {
	text = normalize(text)
	if text == "" {
		return Unknown
	}
	if in, ok := c.exact[text]; ok {
		return in
	}
	for _, r := range c.rules {
		if r.Pattern.MatchString(text) {
			return r.Intent
		}
	}
	return Unknown
}

// Rules returns a copy of the ordered rule table.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	// Phone keyboards often send typographic apostrophes.
	return strings.ReplaceAll(text, "’", "'")
}
