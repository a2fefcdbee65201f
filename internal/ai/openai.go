package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/sirupsen/logrus"
)

const submitValuationFunction = "submit_valuation"

const systemPrompt = "You are a French real-estate valuation expert. " +
	"Answer only by calling submit_valuation with an integer price in euros and an HTML justification."

type OpenAIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

// OpenAIProvider asks a chat model for a valuation through a forced function
// call. If client is nil the provider is disabled and returns empty results.
type OpenAIProvider struct {
	client  *openai.Client
	logger  *logrus.Logger
	model   string
	timeout time.Duration
}

// NewOpenAIProvider creates the provider. Pass an empty API key to disable calls.
func NewOpenAIProvider(logger *logrus.Logger, config OpenAIConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		logger:  logger,
		model:   config.Model,
		timeout: config.Timeout,
	}
	if p.model == "" {
		p.model = string(shared.ChatModelGPT4oMini)
	}
	if p.timeout <= 0 {
		p.timeout = 60 * time.Second
	}
	if config.APIKey == "" {
		return p
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(1)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	c := openai.NewClient(opts...)
	p.client = &c
	return p
}

func (p *OpenAIProvider) Enabled() bool { return p.client != nil }

func (p *OpenAIProvider) ComputeValuation(ctx context.Context, prompt string) (Result, error) {
	if p.client == nil {
		return Result{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"calculatedValuation": map[string]any{
				"type":        []string{"integer", "null"},
				"description": "Estimated market value in euros",
			},
			"justification": map[string]any{
				"type":        "string",
				"description": "HTML using only h3, p, ul and li elements",
			},
		},
		"required":             []string{"calculatedValuation", "justification"},
		"additionalProperties": false,
	}

	fn := shared.FunctionDefinitionParam{
		Name:        submitValuationFunction,
		Description: openai.String("Submit the estimated value of the property and its justification."),
		Strict:      openai.Bool(true),
		Parameters:  schema,
	}

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Tools: []openai.ChatCompletionToolParam{{
			Function: fn,
		}},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: submitValuationFunction,
				},
			},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		p.logger.Warn("OpenAI returned no choices")
		return Result{}, nil
	}

	message := resp.Choices[0].Message
	for _, call := range message.ToolCalls {
		if call.Function.Name == submitValuationFunction {
			return ParseOutput(call.Function.Arguments), nil
		}
	}

	p.logger.Warn("OpenAI answered without calling submit_valuation, parsing message content")
	return ParseOutput(message.Content), nil
}
