package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePostSuggestion(t *testing.T) {
	suggestion, err := ParsePostSuggestion(`{"content":"Spring sale!","reasoning":"season","expectedImpact":"reach","suggestedTime":"09:30","hashtags":["spring"]}`)
	require.NoError(t, err)
	require.Equal(t, "Spring sale!", suggestion.Content)
	require.Equal(t, "medium", suggestion.Confidence)
	require.Equal(t, []string{"spring"}, suggestion.Hashtags)
}

func TestParsePostSuggestionRejectsInvalidReplies(t *testing.T) {
	cases := map[string]string{
		"free text":       `Sure! Here is a post: {"content": "x"}`,
		"missing content": `{"reasoning":"r","expectedImpact":"e"}`,
		"bad time":        `{"content":"x","reasoning":"r","expectedImpact":"e","suggestedTime":"9am"}`,
		"bad confidence":  `{"content":"x","reasoning":"r","expectedImpact":"e","confidence":"certain"}`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePostSuggestion(content)
			require.True(t, errors.Is(err, ErrNoSuggestion))
		})
	}
}

func TestParseBudgetSuggestions(t *testing.T) {
	suggestions, err := ParseBudgetSuggestions(`{"suggestions":[{"campaignId":"c1","action":"increase","currentBudget":100,"newBudget":150,"reason":"good ctr"}]}`)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, 150.0, suggestions[0].NewBudget)

	_, err = ParseBudgetSuggestions(`{"suggestions":[{"campaignId":"c1","action":"double","reason":"x"}]}`)
	require.ErrorIs(t, err, ErrNoSuggestion)
}

func newChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAISuggesterSuggestPost(t *testing.T) {
	server := newChatServer(t, `{"content":"Hello","reasoning":"r","expectedImpact":"e","confidence":"high"}`)
	suggester, err := NewOpenAISuggester(OpenAIConfig{APIKey: "key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	suggestion, err := suggester.SuggestPost(context.Background(), PostBrief{Topics: []string{"coffee"}, RecentPosts: []string{"old post"}})
	require.NoError(t, err)
	require.Equal(t, "Hello", suggestion.Content)
	require.Equal(t, "high", suggestion.Confidence)
}

func TestOpenAISuggesterDiscardsMalformedReply(t *testing.T) {
	server := newChatServer(t, `not json at all`)
	suggester, err := NewOpenAISuggester(OpenAIConfig{APIKey: "key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = suggester.SuggestPost(context.Background(), PostBrief{})
	require.ErrorIs(t, err, ErrNoSuggestion)
}

func TestOpenAISuggesterSkipsBudgetWithoutCampaigns(t *testing.T) {
	suggester, err := NewOpenAISuggester(OpenAIConfig{APIKey: "key", BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)

	suggestions, err := suggester.SuggestBudget(context.Background(), BudgetBrief{})
	require.NoError(t, err)
	require.Empty(t, suggestions)
}

func TestNewOpenAISuggesterRequiresKey(t *testing.T) {
	_, err := NewOpenAISuggester(OpenAIConfig{})
	require.Error(t, err)
}
