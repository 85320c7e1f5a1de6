package gate

import "strings"

// approvalTokens are the phrases that constitute explicit approval.
// The response is valid if it contains any of them.
var approvalTokens = []string{"approved", "approve", "accept", "yes"}

// ambiguousResponses are polite acknowledgments that are explicitly
// rejected. Demanding an unambiguous approval phrase is a deliberate
// safety property of the review boundary.
var ambiguousResponses = map[string]bool{
	"ok":      true,
	"sure":    true,
	"fine":    true,
	"alright": true,
}

// ApprovalResult is the outcome of validating an approval response.
type ApprovalResult struct {
	Valid    bool
	Guidance string
}

// ValidateApproval normalizes the response (lowercase, trimmed) and
// checks it against the approval lexicon. Exact matches of ambiguous
// acknowledgments are rejected; any response containing an approval
// token is accepted; everything else is invalid with coaching.
func ValidateApproval(response string) ApprovalResult {
	normalized := strings.ToLower(strings.TrimSpace(response))

	if ambiguousResponses[normalized] {
		return ApprovalResult{
			Valid:    false,
			Guidance: `"` + normalized + `" is ambiguous - please respond "approved" or "yes" to approve this gate`,
		}
	}

	for _, token := range approvalTokens {
		if strings.Contains(normalized, token) {
			return ApprovalResult{Valid: true}
		}
	}

	return ApprovalResult{
		Valid:    false,
		Guidance: `please respond "approved" or "yes" to approve this gate`,
	}
}
