package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const postSuggestionSchema = `{
  "type": "object",
  "required": ["content", "reasoning", "expectedImpact"],
  "properties": {
    "content": {"type": "string", "minLength": 1, "maxLength": 2000},
    "reasoning": {"type": "string", "minLength": 1},
    "expectedImpact": {"type": "string"},
    "suggestedTime": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
    "hashtags": {"type": "array", "items": {"type": "string"}},
    "confidence": {"enum": ["high", "medium", "low"]}
  }
}`

const budgetSuggestionSchema = `{
  "type": "object",
  "required": ["suggestions"],
  "properties": {
    "suggestions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["campaignId", "action", "reason"],
        "properties": {
          "campaignId": {"type": "string", "minLength": 1},
          "action": {"enum": ["increase", "decrease", "pause", "resume"]},
          "currentBudget": {"type": "number", "minimum": 0},
          "newBudget": {"type": "number", "minimum": 0},
          "reason": {"type": "string", "minLength": 1},
          "confidence": {"enum": ["high", "medium", "low"]}
        }
      }
    }
  }
}`

var (
	postSchema   = jsonschema.MustCompileString("post_suggestion.json", postSuggestionSchema)
	budgetSchema = jsonschema.MustCompileString("budget_suggestion.json", budgetSuggestionSchema)
)

// decodeStrict validates content against schema before decoding it into out.
func decodeStrict(schema *jsonschema.Schema, content string, out interface{}) error {
	content = strings.TrimSpace(content)

	var document interface{}
	if err := json.Unmarshal([]byte(content), &document); err != nil {
		return fmt.Errorf("%w: reply is not json: %v", ErrNoSuggestion, err)
	}
	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrNoSuggestion, err)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", ErrNoSuggestion, err)
	}
	return nil
}

// ParsePostSuggestion decodes a model reply into a post suggestion.
func ParsePostSuggestion(content string) (PostSuggestion, error) {
	var suggestion PostSuggestion
	if err := decodeStrict(postSchema, content, &suggestion); err != nil {
		return PostSuggestion{}, err
	}
	if suggestion.Confidence == "" {
		suggestion.Confidence = "medium"
	}
	return suggestion, nil
}

// ParseBudgetSuggestions decodes a model reply into budget suggestions.
func ParseBudgetSuggestions(content string) ([]BudgetSuggestion, error) {
	var envelope struct {
		Suggestions []BudgetSuggestion `json:"suggestions"`
	}
	if err := decodeStrict(budgetSchema, content, &envelope); err != nil {
		return nil, err
	}
	for i := range envelope.Suggestions {
		if envelope.Suggestions[i].Confidence == "" {
			envelope.Suggestions[i].Confidence = "medium"
		}
	}
	return envelope.Suggestions, nil
}
