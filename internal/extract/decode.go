package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"afin/internal/domain"
)

// CleanModelJSON strips Markdown code fences and surrounding junk that the
// model sometimes emits despite instructions, keeping only the JSON array.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// If there is still junk around the array, keep only from the first '['
	// to the last ']'.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

// DecodeCandidates parses raw model output into loosely-typed candidate
// objects. It performs no field validation; that is the normalizer's job.
// An empty array is a valid, empty result.
func DecodeCandidates(raw string) ([]domain.Candidate, error) {
	clean := CleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("DecodeCandidates: empty model output")
	}

	var candidates []domain.Candidate
	if err := json.Unmarshal([]byte(clean), &candidates); err != nil {
		return nil, fmt.Errorf("DecodeCandidates: unmarshal JSON array: %w", err)
	}
	return candidates, nil
}
