package entity

import (
	"context"
	"fmt"
	"strings"
)

// Inputs are the fields a render needs from the target record.
type Inputs struct {
	// Text is the spoken text. Empty for chatbot slots, where the greeting is
	// built from Name.
	Text string
	// VoiceGender is the raw gender code (m, f, or empty).
	VoiceGender string
	// AvatarPath is the icon path as stored, usually a URL path such as
	// /static/icons/name.png.
	AvatarPath string
	Name       string
}

// Store is the entity collaborator.
type Store interface {
	ReadRenderInputs(ctx context.Context, ref Ref) (Inputs, error)
	// WriteRenderMarker sets the marker. A nil artifact leaves the stored
	// path untouched; an empty string clears it.
	WriteRenderMarker(ctx context.Context, ref Ref, marker Marker, artifact *string) error
}

type columns struct {
	table  string
	key    string
	marker string
	path   string
}

func columnsFor(ref Ref) (columns, error) {
	if err := ref.Validate(); err != nil {
		return columns{}, err
	}
	switch ref.Slot {
	case SlotAnswer:
		return columns{table: "faq", key: "faq_id", marker: "video_status", path: "video_path"}, nil
	case SlotGreeting:
		return columns{table: "chatbot", key: "chatbot_id", marker: "video_greeting_status", path: "video_greeting_path"}, nil
	default:
		return columns{table: "chatbot", key: "chatbot_id", marker: "video_idle_status", path: "video_idle_path"}, nil
	}
}

// placeholder renders the nth bind parameter for a dialect.
type placeholder func(n int) string

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

const faqInputsSQL = `SELECT COALESCE(f.video_text, ''), COALESCE(f.resposta, ''),
       COALESCE(c.nome, ''), COALESCE(c.genero, ''), COALESCE(c.icon_path, '')
FROM faq f
JOIN chatbot c ON f.chatbot_id = c.chatbot_id
WHERE f.faq_id = %s`

const chatbotInputsSQL = `SELECT COALESCE(nome, ''), COALESCE(genero, ''), COALESCE(icon_path, '')
FROM chatbot
WHERE chatbot_id = %s`

func inputsQuery(ref Ref, ph placeholder) string {
	if ref.Scope == ScopeFAQ {
		return fmt.Sprintf(faqInputsSQL, ph(1))
	}
	return fmt.Sprintf(chatbotInputsSQL, ph(1))
}

// markerQuery builds the UPDATE for a marker write and its arguments. An
// empty artifact string is stored as NULL.
func markerQuery(ref Ref, marker Marker, artifact *string, ph placeholder) (string, []any, error) {
	cols, err := columnsFor(ref)
	if err != nil {
		return "", nil, err
	}
	if artifact == nil {
		query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
			cols.table, cols.marker, ph(1), cols.key, ph(2))
		return query, []any{string(marker), ref.ID}, nil
	}
	var path any
	if strings.TrimSpace(*artifact) != "" {
		path = *artifact
	}
	query := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s = %s",
		cols.table, cols.marker, ph(1), cols.path, ph(2), cols.key, ph(3))
	return query, []any{string(marker), path, ref.ID}, nil
}

// faqText prefers the dedicated video text and falls back to the answer.
func faqText(videoText, answer string) string {
	if text := strings.TrimSpace(videoText); text != "" {
		return text
	}
	return strings.TrimSpace(answer)
}
