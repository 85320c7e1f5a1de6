// Package feedback classifies user messages arriving during gate
// review. The classifier is lexicon-based: a routing hint, never a
// semantic guarantee.
package feedback

import "strings"

// Category of a classified message.
type Category string

const (
	ChangeRequest Category = "CHANGE_REQUEST"
	Preference    Category = "PREFERENCE"
	Suggestion    Category = "SUGGESTION"
	Question      Category = "QUESTION"
	Approval      Category = "APPROVAL"
	Rejection     Category = "REJECTION"
	BugReport     Category = "BUG_REPORT"
	Clarification Category = "CLARIFICATION"
	Other         Category = "OTHER"
)

// Sentiment is a coarse polarity signal.
type Sentiment string

const (
	Positive Sentiment = "POSITIVE"
	Neutral  Sentiment = "NEUTRAL"
	Negative Sentiment = "NEGATIVE"
)

// Classification is the routing hint for one message.
type Classification struct {
	IsFeedback bool      `json:"is_feedback"`
	Category   Category  `json:"category"`
	Sentiment  Sentiment `json:"sentiment"`
}

// categoryLexicons maps categories to their marker tokens. Order
// matters: the first category with a hit wins, so the more actionable
// categories come first.
var categoryLexicons = []struct {
	category Category
	tokens   []string
}{
	{BugReport, []string{"bug", "broken", "crash", "error", "doesn't work", "does not work", "fails"}},
	{ChangeRequest, []string{"change", "instead", "replace", "remove", "add ", "should be", "must be", "rename", "update the"}},
	{Rejection, []string{"reject", "no, ", "wrong", "not what", "don't like", "do not like", "unacceptable"}},
	{Approval, []string{"approved", "approve", "accept", "looks good", "lgtm", "ship it", "yes"}},
	{Preference, []string{"prefer", "i'd rather", "i would rather", "better if", "favorite", "like it more"}},
	{Suggestion, []string{"suggest", "consider", "maybe", "could ", "how about", "what about", "idea:"}},
	{Clarification, []string{"to clarify", "i meant", "in other words", "clarify", "specifically"}},
	{Question, []string{"?", "why ", "how ", "what ", "when ", "where ", "can you explain"}},
}

var positiveWords = []string{
	"good", "great", "excellent", "love", "nice", "perfect", "thanks", "well done", "solid",
}

var negativeWords = []string{
	"bad", "wrong", "hate", "terrible", "awful", "broken", "poor", "disappointing", "unacceptable",
}

// Classify assigns a category and sentiment to a message. A message
// with no lexicon hit is OTHER and not feedback.
func Classify(message string) Classification {
	normalized := strings.ToLower(message)

	c := Classification{Category: Other, Sentiment: sentiment(normalized)}
	for _, lex := range categoryLexicons {
		for _, token := range lex.tokens {
			if strings.Contains(normalized, token) {
				c.Category = lex.category
				c.IsFeedback = true
				return c
			}
		}
	}
	return c
}

func sentiment(normalized string) Sentiment {
	var positive, negative int
	for _, w := range positiveWords {
		positive += strings.Count(normalized, w)
	}
	for _, w := range negativeWords {
		negative += strings.Count(normalized, w)
	}
	switch {
	case positive > negative:
		return Positive
	case negative > positive:
		return Negative
	default:
		return Neutral
	}
}
