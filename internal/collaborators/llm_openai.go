package collaborators

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

// OpenAILLM wraps the OpenAI Go SDK to implement the LLM collaborator.
// Construction follows the teacher adapters package's conditional
// option-building idiom: an empty baseURL means "use OpenAI directly".
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM builds an OpenAILLM for OpenAI or an OpenAI-compatible
// endpoint (baseURL == "" selects the default OpenAI endpoint).
func NewOpenAILLM(apiKey, baseURL, model string) *OpenAILLM {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAILLM{client: &client, model: model}
}

// decompositionSystemPrompt is the fixed system instruction for the
// Planner's LLM path (spec.md §4.1: "a fixed system instruction and
// three fixed few-shot examples").
const decompositionSystemPrompt = `You are a research planning expert. Decompose the user's research question into a small set of independent or dependent subtasks that, together, gather the information needed to answer it fully.

Respond with a JSON object of exactly this shape:
{"subtasks": [{"id": "string", "query": "string", "dependencies": ["string"], "entities": ["string"]}, ...], "reasoning": "string"}

Rules:
- Each subtask id is unique and short (e.g. "s1", "s2").
- "dependencies" lists ids of subtasks that must be answered first; use [] for none.
- Keep the subtask count small (2-6) and avoid redundant subtasks.
- Respond with JSON only, no surrounding prose.`

var decompositionFewShot = []struct{ user, assistant string }{
	{
		user:      "What is the capital of France?",
		assistant: `{"subtasks": [{"id": "s1", "query": "What is the capital of France?", "dependencies": [], "entities": ["France"]}], "reasoning": "Single fact lookup, no decomposition needed."}`,
	},
	{
		user:      "Compare the economies of Japan and Germany.",
		assistant: `{"subtasks": [{"id": "s1", "query": "Key facts about Japan's economy", "dependencies": [], "entities": ["Japan"]}, {"id": "s2", "query": "Key facts about Germany's economy", "dependencies": [], "entities": ["Germany"]}, {"id": "s3", "query": "Compare Japan and Germany economic indicators", "dependencies": ["s1", "s2"], "entities": ["Japan", "Germany"]}], "reasoning": "Gather each economy independently, then compare."}`,
	},
	{
		user:      "What caused the fall of the Roman Empire and how did it affect medieval Europe?",
		assistant: `{"subtasks": [{"id": "s1", "query": "Causes of the fall of the Roman Empire", "dependencies": [], "entities": ["Roman Empire"]}, {"id": "s2", "query": "Effects of the fall of Rome on medieval Europe", "dependencies": ["s1"], "entities": ["Roman Empire", "medieval Europe"]}], "reasoning": "Causes must be established before discussing downstream effects."}`,
	},
}

func (a *OpenAILLM) Decompose(ctx context.Context, query string) (*DecompositionResponse, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(decompositionSystemPrompt),
	}
	for _, ex := range decompositionFewShot {
		messages = append(messages, openai.UserMessage(ex.user), openai.AssistantMessage(ex.assistant))
	}
	messages = append(messages, openai.UserMessage(query))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Messages:    messages,
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llm decompose: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm decompose: empty response")
	}

	var out DecompositionResponse
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("llm decompose: parse response: %w", err)
	}
	return &out, nil
}

const extractionSystemPrompt = `You extract atomic factual claims from a single search result, relative to a research query. Each claim must be directly supported by a verbatim span of the given text.

Respond with a JSON object of exactly this shape:
{"claims": [{"statement": "string", "support_text": "string"}, ...]}

Rules:
- "support_text" must be copied verbatim from the provided text.
- Only extract claims relevant to the query.
- If nothing relevant is found, respond with {"claims": []}.
- Respond with JSON only, no surrounding prose.`

func (a *OpenAILLM) ExtractClaims(ctx context.Context, query string, hit hdrptypes.SearchResult) ([]ExtractedClaim, error) {
	user := fmt.Sprintf("Query: %s\n\nTitle: %s\nURL: %s\nText: %s", query, hit.Title, hit.URL, hit.Snippet)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llm extract claims: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm extract claims: empty response")
	}

	var out struct {
		Claims []ExtractedClaim `json:"claims"`
	}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("llm extract claims: parse response: %w", err)
	}
	return out.Claims, nil
}
