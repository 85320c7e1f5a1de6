package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateApprovalAcceptsExplicitPhrases(t *testing.T) {
	for _, response := range []string{
		"approved",
		"Approved",
		"  YES  ",
		"accept",
		"approve",
		"yes, looks good to me",
		"this is approved with minor comments",
	} {
		result := ValidateApproval(response)
		assert.True(t, result.Valid, "expected %q to be accepted", response)
	}
}

func TestValidateApprovalRejectsAmbiguousAcknowledgments(t *testing.T) {
	for _, response := range []string{"ok", "OK", "sure", "fine", "alright", " Fine "} {
		result := ValidateApproval(response)
		assert.False(t, result.Valid, "expected %q to be rejected", response)
		assert.Contains(t, result.Guidance, "ambiguous")
	}
}

func TestValidateApprovalRejectsUnrelatedText(t *testing.T) {
	result := ValidateApproval("looks interesting, tell me more")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Guidance, `"approved"`)
}

func TestValidateApprovalAmbiguousMatchIsExactOnly(t *testing.T) {
	// "okay, approved" contains an approval token and is not an exact
	// ambiguous match, so it passes.
	result := ValidateApproval("okay, approved")
	assert.True(t, result.Valid)
}
