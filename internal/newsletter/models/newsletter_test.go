package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "mailomat/pkg/domain-errors"
)

func TestNewsletter_Validate(t *testing.T) {
	valid := Newsletter{Title: "Issue 1", Content: Content{HTML: "<p>hi</p>", Text: "hi"}}
	assert.NoError(t, valid.Validate())

	cases := map[string]func(n *Newsletter){
		"missing title": func(n *Newsletter) { n.Title = "" },
		"blank title":   func(n *Newsletter) { n.Title = "  \t" },
		"missing html":  func(n *Newsletter) { n.Content.HTML = "" },
		"missing text":  func(n *Newsletter) { n.Content.Text = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			n := valid
			mutate(&n)
			assert.True(t, dErrors.HasCode(n.Validate(), dErrors.CodeValidation))
		})
	}
}

func TestDispatchReport_Complete(t *testing.T) {
	assert.True(t, (&DispatchReport{Attempted: 2, Delivered: 2}).Complete())
	assert.False(t, (&DispatchReport{Attempted: 1, Failures: []Failure{{Email: "a@b.c", Reason: "x"}}}).Complete())

	skipped := &DispatchReport{Attempted: 1, Delivered: 1, Skipped: 2}
	assert.False(t, skipped.Complete())
	assert.Equal(t, 2, skipped.Undelivered())
}
