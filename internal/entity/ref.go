package entity

import (
	"fmt"
	"strings"
)

// Scope names the table a target belongs to.
type Scope string

const (
	ScopeFAQ     Scope = "faq"
	ScopeChatbot Scope = "chatbot"
)

// Slot selects which artifact of a target is rendered.
type Slot string

const (
	SlotAnswer   Slot = "answer"
	SlotGreeting Slot = "greeting"
	SlotIdle     Slot = "idle"
)

// Marker is the per-artifact render status stored on the entity.
type Marker string

const (
	MarkerQueued     Marker = "queued"
	MarkerProcessing Marker = "processing"
	MarkerReady      Marker = "ready"
	MarkerFailed     Marker = "failed"
	MarkerCancelled  Marker = "cancelled"
)

// Ref identifies one artifact of one target entity.
type Ref struct {
	Scope Scope `json:"scope"`
	ID    int64 `json:"id"`
	Slot  Slot  `json:"slot"`
}

// FAQAnswer is the single artifact of a FAQ.
func FAQAnswer(id int64) Ref {
	return Ref{Scope: ScopeFAQ, ID: id, Slot: SlotAnswer}
}

// ChatbotPair returns the greeting and idle refs of a chatbot, in render order.
func ChatbotPair(id int64) []Ref {
	return []Ref{
		{Scope: ScopeChatbot, ID: id, Slot: SlotGreeting},
		{Scope: ScopeChatbot, ID: id, Slot: SlotIdle},
	}
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d/%s", r.Scope, r.ID, r.Slot)
}

// Validate rejects unknown scope and slot combinations.
func (r Ref) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("invalid %s id %d", r.Scope, r.ID)
	}
	switch {
	case r.Scope == ScopeFAQ && r.Slot == SlotAnswer:
	case r.Scope == ScopeChatbot && (r.Slot == SlotGreeting || r.Slot == SlotIdle):
	default:
		return fmt.Errorf("unsupported target %s", r)
	}
	return nil
}

// ArtifactName is the canonical file name of the promoted clip.
func (r Ref) ArtifactName() string {
	return string(r.Slot) + ".mp4"
}

// Silent reports whether the artifact is rendered without speech.
func (r Ref) Silent() bool {
	return r.Slot == SlotIdle
}

// ParseScope accepts the scope names used on the command line and HTTP API.
func ParseScope(value string) (Scope, bool) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case ScopeFAQ:
		return ScopeFAQ, true
	case ScopeChatbot:
		return ScopeChatbot, true
	default:
		return "", false
	}
}

// Terminal reports whether no further work will happen for the marker.
func (m Marker) Terminal() bool {
	return m == MarkerReady || m == MarkerFailed || m == MarkerCancelled
}
