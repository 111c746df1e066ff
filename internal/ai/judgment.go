package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hearthkeep/chronicle/internal/domain"
)

// Judgment is one structured verdict from the classification service:
// what kind of event a bracket is, who it belongs to, and how sure the
// model is. A nil CharacterName means the model could not determine an
// owner.
type Judgment struct {
	EventID       int64
	EventType     domain.EventType
	CharacterName *string
	Fields        map[string]any
	Confidence    float64
	Reasoning     string
}

type judgmentResponse struct {
	Attributions []struct {
		EventID       int64          `json:"event_id"`
		EventType     string         `json:"event_type"`
		CharacterName *string        `json:"character_name"`
		ParsedData    map[string]any `json:"parsed_data"`
		Confidence    float64        `json:"confidence"`
		Reasoning     string         `json:"reasoning"`
	} `json:"attributions"`
}

// ParseJudgments extracts judgments from a raw model response. A type
// outside the closed enumeration is coerced to "other" rather than
// rejected; a response with no parseable JSON is an error the caller
// treats as "events not processed".
func ParseJudgments(content string) ([]Judgment, error) {
	jsonStr, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var resp judgmentResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal judgment response: %w", err)
	}

	judgments := make([]Judgment, 0, len(resp.Attributions))
	for _, a := range resp.Attributions {
		eventType := domain.EventType(a.EventType)
		if !eventType.IsValid() {
			eventType = domain.EventTypeOther
		}

		fields := a.ParsedData
		if fields == nil {
			fields = map[string]any{}
		}

		judgments = append(judgments, Judgment{
			EventID:       a.EventID,
			EventType:     eventType,
			CharacterName: a.CharacterName,
			Fields:        fields,
			Confidence:    a.Confidence,
			Reasoning:     a.Reasoning,
		})
	}
	return judgments, nil
}

// extractJSON finds the first complete JSON object in a string,
// tolerating markdown code fences around it.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return s[start : end+1], nil
}
