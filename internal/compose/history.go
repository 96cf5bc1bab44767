package compose

import "github.com/scribeworks/scribe/internal/chunk"

// Message is one turn of conversation history.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxPairs bounds how many (user, assistant) exchanges survive
// trimming.
const DefaultMaxPairs = 8

// Token-safety parameters for EnsureTokenSafety.
const (
	// ModelContextLimit is the total prompt budget of the target model.
	ModelContextLimit = 190000

	// DefaultExpectedReplyTokens is reserved for the model's reply.
	DefaultExpectedReplyTokens = 4000
)

// TrimMessagesToLimit keeps only the most recent maxPairs (user, assistant)
// exchanges of a flat alternating history, so conversation history never
// grows the prompt unboundedly.
//
// A trailing unpaired user message counts as its own pair. The returned slice
// always ends on the original last message. maxPairs <= 0 means
// DefaultMaxPairs.
func TrimMessagesToLimit(messages []Message, maxPairs int) []Message {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	if len(messages) == 0 {
		return nil
	}

	// Group into pairs: a user message opens a pair, the following
	// assistant message closes it. A message that cannot attach to an open
	// pair forms its own.
	var pairs [][]Message
	for _, m := range messages {
		last := len(pairs) - 1
		if m.Role == RoleAssistant && last >= 0 && len(pairs[last]) == 1 && pairs[last][0].Role == RoleUser {
			pairs[last] = append(pairs[last], m)
			continue
		}
		pairs = append(pairs, []Message{m})
	}

	if len(pairs) > maxPairs {
		pairs = pairs[len(pairs)-maxPairs:]
	}

	out := make([]Message, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out, p...)
	}
	return out
}

// SafetyCheck is the result of a token-safety estimate.
type SafetyCheck struct {
	Safe          bool
	TotalEstimate int
	Limit         int
}

// EnsureTokenSafety estimates whether a prompt assembled from the given
// parts fits the model's context limit, reply reserve included.
//
// It is a pure arithmetic guard: callers get Safe=false rather than an
// error, so they can shrink the composer budget and retry.
// expectedReplyTokens <= 0 means DefaultExpectedReplyTokens.
func EnsureTokenSafety(systemPromptText string, contextTokens, conversationTokens, expectedReplyTokens int) SafetyCheck {
	if expectedReplyTokens <= 0 {
		expectedReplyTokens = DefaultExpectedReplyTokens
	}
	total := chunk.EstimateTokens(systemPromptText) + contextTokens + conversationTokens + expectedReplyTokens
	return SafetyCheck{
		Safe:          total <= ModelContextLimit,
		TotalEstimate: total,
		Limit:         ModelContextLimit,
	}
}
