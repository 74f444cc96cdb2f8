package entity

import (
	"strings"
	"testing"
)

func TestRefValidate(t *testing.T) {
	tests := []struct {
		name    string
		ref     Ref
		wantErr bool
	}{
		{"faq answer", FAQAnswer(7), false},
		{"chatbot greeting", Ref{Scope: ScopeChatbot, ID: 3, Slot: SlotGreeting}, false},
		{"chatbot idle", Ref{Scope: ScopeChatbot, ID: 3, Slot: SlotIdle}, false},
		{"faq idle", Ref{Scope: ScopeFAQ, ID: 3, Slot: SlotIdle}, true},
		{"chatbot answer", Ref{Scope: ScopeChatbot, ID: 3, Slot: SlotAnswer}, true},
		{"zero id", FAQAnswer(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatbotPairOrder(t *testing.T) {
	pair := ChatbotPair(9)
	if len(pair) != 2 || pair[0].Slot != SlotGreeting || pair[1].Slot != SlotIdle {
		t.Fatalf("unexpected pair %v", pair)
	}
	if !pair[1].Silent() || pair[0].Silent() {
		t.Fatal("only the idle slot is silent")
	}
	if pair[0].ArtifactName() != "greeting.mp4" {
		t.Fatalf("unexpected artifact name %q", pair[0].ArtifactName())
	}
}

func TestMarkerQueryLeavesPathWhenNil(t *testing.T) {
	query, args, err := markerQuery(FAQAnswer(4), MarkerFailed, nil, dollar)
	if err != nil {
		t.Fatalf("markerQuery: %v", err)
	}
	if strings.Contains(query, "video_path") {
		t.Fatalf("nil artifact must not touch the path column: %s", query)
	}
	if len(args) != 2 || args[0] != "failed" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestMarkerQueryClearsPathWhenEmpty(t *testing.T) {
	empty := ""
	query, args, err := markerQuery(Ref{Scope: ScopeChatbot, ID: 2, Slot: SlotIdle}, MarkerCancelled, &empty, question)
	if err != nil {
		t.Fatalf("markerQuery: %v", err)
	}
	if !strings.Contains(query, "video_idle_path = ?") {
		t.Fatalf("expected idle path column in %s", query)
	}
	if args[1] != nil {
		t.Fatalf("expected NULL path, got %v", args[1])
	}
}

func TestFAQTextFallsBackToAnswer(t *testing.T) {
	if got := faqText("  ", " resposta "); got != "resposta" {
		t.Fatalf("faqText fallback = %q", got)
	}
	if got := faqText("video", "resposta"); got != "video" {
		t.Fatalf("faqText preference = %q", got)
	}
}
