package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"YES please", Confirm},
		{"confirm", Confirm},
		{"  Confirm  ", Confirm},
		{"ok see you then", Confirm},
		{"Yeah that's correct", Confirm},
		{"reschedule", Reschedule},
		{"can we move it", Reschedule},
		{"I need a different time", Reschedule},
		{"no", Reschedule},
		{"Please cancel", Reschedule},
		{"I can’t make it", Reschedule},
		{"not coming sorry", Reschedule},
		{"purple monkey", Unknown},
		{"", Unknown},
		{"   ", Unknown},
		{"nobody told me", Unknown},
		{"yesterday was fine", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text))
		})
	}
}

func TestConfirmCheckedBeforeReschedule(t *testing.T) {
	assert.Equal(t, Confirm, Classify("yes but can we move it"))
	assert.Equal(t, Confirm, Classify("no wait, ok"))
}

func TestCustomRuleTable(t *testing.T) {
	c := NewClassifier(
		Keywords(Reschedule, "later"),
		Keywords(Confirm, "grand"),
	)
	assert.Equal(t, Confirm, c.Classify("grand so"))
	assert.Equal(t, Reschedule, c.Classify("grand but later"))
	assert.Equal(t, Confirm, c.Classify("CONFIRM"))
	assert.Equal(t, Unknown, c.Classify("yes"))
	assert.Len(t, c.Rules(), 2)
}

func TestParse(t *testing.T) {
	assert.Equal(t, Confirm, Parse("Confirm"))
	assert.Equal(t, Reschedule, Parse(" reschedule "))
	assert.Equal(t, Unknown, Parse("cancel"))
	assert.Equal(t, "reschedule", Reschedule.String())
	assert.Equal(t, "unknown", Unknown.String())
}
