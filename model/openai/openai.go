// Package openai provides an implementation of model.Gateway using the OpenAI
// Chat Completions API (including streaming + function/tool calling). It
// adapts agentrun's normalized request/decision structures into the SDK's
// message format and back.
package openai

import (
	"context"
	"fmt"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/model"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI gateway adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Gateway wraps the OpenAI Chat Completions API behind the generic
// model.Gateway interface.
type Gateway struct {
	client *openai.Client
	opts   Options
}

// NewGateway creates a new OpenAI gateway using the official client.
func NewGateway(optFns ...func(o *Options)) *Gateway {
	client := openai.NewClient()
	return NewGatewayFromClient(&client, optFns...)
}

// NewGatewayFromClient creates a new OpenAI gateway from an existing client.
func NewGatewayFromClient(client *openai.Client, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

// Think implements the blocking decision call. The full session log is
// converted to provider messages; requested tool calls are returned in the
// order the provider produced them.
func (g *Gateway) Think(ctx context.Context, req model.ThinkRequest) (*model.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.SystemPrompt, req.Messages),
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Function.Name,
					Description: openai.String(tdef.Function.Description),
					Parameters:  tdef.Function.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api returned no choices")
	}

	ch0 := resp.Choices[0]
	decision := &model.Decision{Text: ch0.Message.Content}
	for _, tc := range ch0.Message.ToolCalls {
		decision.ToolCalls = append(decision.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return decision, nil
}

// Narrate implements incremental plain text production via the streaming API.
// Tools are never exposed on this path.
func (g *Gateway) Narrate(ctx context.Context, req model.NarrateRequest) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := openai.ChatCompletionNewParams{
			Messages:            buildMessages(req.SystemPrompt, req.Messages),
			Model:               g.opts.Model,
			Temperature:         openai.Float(g.opts.Temperature),
			MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
		}

		stream := g.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- ch.Delta.Content:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return out, errCh
}

// Info returns metadata describing this OpenAI gateway implementation.
func (g *Gateway) Info() model.Info {
	return model.Info{Name: g.opts.Model, Provider: "openai"}
}

// buildMessages converts the session log into OpenAI chat messages. Tool
// results carrying a call id are rendered as an assistant tool-call message
// followed by the matching tool response, keeping the provider protocol
// valid; results without an id degrade to plain assistant text.
func buildMessages(systemPrompt string, msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(m.Text))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Text))
		case core.RoleTool:
			if m.ToolUse == nil || m.ToolUse.CallID == "" {
				messages = append(messages, openai.AssistantMessage(m.Text))
				continue
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: "assistant",
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID:   m.ToolUse.CallID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      m.ToolUse.Name,
							Arguments: m.ToolUse.Arguments,
						},
					}},
				}},
			)
			messages = append(messages, openai.ToolMessage(m.ToolUse.Result, m.ToolUse.CallID))
		default:
			if m.Text != "" {
				messages = append(messages, openai.UserMessage(m.Text))
			}
		}
	}
	return messages
}
