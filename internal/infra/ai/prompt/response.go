package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Response mirrors the JSON schema demanded by GetSystemPrompt.
type Response struct {
	Recommendations map[string]Item `json:"recommendations"`
	Text            string          `json:"text"`
	Confidence      *float64        `json:"confidence"`
}

// Item is one recommendation as the model writes it. Both "dose" and "dosage"
// are accepted since models drift between them.
type Item struct {
	Name       string   `json:"name"`
	Dose       string   `json:"dose"`
	Dosage     string   `json:"dosage"`
	Duration   string   `json:"duration"`
	Priority   string   `json:"priority"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence"`
}

// ParseResponse decodes a model reply. Surrounding code fences are stripped, any
// other deviation from a JSON object is an error.
func ParseResponse(raw string) (*Response, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, errors.New("empty model response")
	}
	var r Response
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return &r, nil
}
