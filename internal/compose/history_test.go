package compose

import (
	"strings"
	"testing"
)

func msgs(roles ...string) []Message {
	out := make([]Message, len(roles))
	for i, r := range roles {
		out[i] = Message{Role: r, Content: "m" + string(rune('0'+i))}
	}
	return out
}

func TestTrimMessagesToLimit_UnderLimit(t *testing.T) {
	in := msgs(RoleUser, RoleAssistant, RoleUser)
	got := TrimMessagesToLimit(in, 8)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want all 3", len(got))
	}
}

func TestTrimMessagesToLimit_KeepsMostRecentPairs(t *testing.T) {
	// 20 alternating messages = 10 pairs, trimmed to 3.
	var in []Message
	for i := 0; i < 10; i++ {
		in = append(in, Message{Role: RoleUser, Content: "question"})
		in = append(in, Message{Role: RoleAssistant, Content: "answer"})
	}
	got := TrimMessagesToLimit(in, 3)
	if len(got) != 6 {
		t.Fatalf("got %d messages, want 6", len(got))
	}
	if got[0].Role != RoleUser || got[len(got)-1].Role != RoleAssistant {
		t.Error("trimmed history must start on user and end on assistant")
	}
	if got[len(got)-1] != in[len(in)-1] {
		t.Error("trimmed history must end on the original last message")
	}
}

func TestTrimMessagesToLimit_DefaultMaxPairs(t *testing.T) {
	var in []Message
	for i := 0; i < 20; i++ {
		in = append(in, Message{Role: RoleUser}, Message{Role: RoleAssistant})
	}
	got := TrimMessagesToLimit(in, 0)
	if len(got) != 2*DefaultMaxPairs {
		t.Fatalf("got %d messages, want %d", len(got), 2*DefaultMaxPairs)
	}
}

func TestTrimMessagesToLimit_TrailingUserOwnsAPair(t *testing.T) {
	in := []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	}
	got := TrimMessagesToLimit(in, 2)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[len(got)-1].Content != "q2" {
		t.Error("trailing user message lost")
	}

	// With only one pair allowed, the unpaired trailer survives alone.
	got = TrimMessagesToLimit(in, 1)
	if len(got) != 1 || got[0].Content != "q2" {
		t.Errorf("got %+v, want just the trailing user message", got)
	}
}

func TestTrimMessagesToLimit_ConsecutiveSameRole(t *testing.T) {
	// Two assistant messages in a row: the second cannot close an already
	// closed pair and forms its own.
	in := []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleAssistant, Content: "a2"},
	}
	got := TrimMessagesToLimit(in, 1)
	if len(got) != 1 || got[0].Content != "a2" {
		t.Errorf("got %+v, want the lone trailing assistant message", got)
	}
}

func TestTrimMessagesToLimit_Empty(t *testing.T) {
	if got := TrimMessagesToLimit(nil, 4); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestEnsureTokenSafety_Safe(t *testing.T) {
	check := EnsureTokenSafety("You are a writing assistant.", 8000, 2000, 4000)
	if !check.Safe {
		t.Errorf("small prompt flagged unsafe: %+v", check)
	}
	wantTotal := (len("You are a writing assistant.")+3)/4 + 8000 + 2000 + 4000
	if check.TotalEstimate != wantTotal {
		t.Errorf("TotalEstimate = %d, want %d", check.TotalEstimate, wantTotal)
	}
	if check.Limit != ModelContextLimit {
		t.Errorf("Limit = %d, want %d", check.Limit, ModelContextLimit)
	}
}

func TestEnsureTokenSafety_Unsafe(t *testing.T) {
	system := strings.Repeat("x", 4*ModelContextLimit)
	check := EnsureTokenSafety(system, 0, 0, 0)
	if check.Safe {
		t.Error("oversized prompt flagged safe")
	}
	if check.TotalEstimate <= ModelContextLimit {
		t.Errorf("TotalEstimate = %d, should exceed the limit", check.TotalEstimate)
	}
}

func TestEnsureTokenSafety_ReplyReserveDefault(t *testing.T) {
	check := EnsureTokenSafety("", 0, 0, 0)
	if check.TotalEstimate != DefaultExpectedReplyTokens {
		t.Errorf("TotalEstimate = %d, want the default reply reserve %d",
			check.TotalEstimate, DefaultExpectedReplyTokens)
	}
}
