// File: internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse parses a model response into the target type. Models
// routinely wrap their payload in markdown fences or conversational prose;
// extraction is lenient (fence first, then outermost bracket slice) but the
// extracted payload itself must unmarshal cleanly.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload, err := ExtractJSONPayload(response)
	if err != nil {
		return nil, err
	}

	var result T
	if err := jsonAPI.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s",
			err, truncateString(payload, 500))
	}
	return &result, nil
}

// ExtractJSONPayload locates the structured payload inside a raw model
// response without unmarshaling it. Returns an error when no JSON object or
// array is recoverable.
func ExtractJSONPayload(response string) (string, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("empty model response")
	}

	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")
	if !isObject && !isArray {
		return "", fmt.Errorf("no JSON structure in model response (truncated): %s", truncateString(response, 200))
	}

	// Markdown fence wrapping is the most common case.
	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1], nil
		}
	}

	// Already bare JSON.
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response, nil
	}

	// Payload embedded in conversational text: take the outermost bracket
	// slice, preferring an object when both shapes appear.
	if isObject {
		fb := strings.Index(response, "{")
		lb := strings.LastIndex(response, "}")
		if fb != -1 && lb > fb {
			return response[fb : lb+1], nil
		}
	}
	if isArray {
		fb := strings.Index(response, "[")
		lb := strings.LastIndex(response, "]")
		if fb != -1 && lb > fb {
			return response[fb : lb+1], nil
		}
	}

	return "", fmt.Errorf("no recoverable JSON payload in model response (truncated): %s", truncateString(response, 200))
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
