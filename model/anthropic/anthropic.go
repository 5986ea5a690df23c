// Package anthropic provides an implementation of model.Gateway using the
// Anthropic Claude Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/model"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// Options configures the Anthropic gateway adapter (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Gateway wraps the Anthropic Messages API behind the generic model.Gateway
// interface.
type Gateway struct {
	client *anthropic.Client
	opts   Options
}

// NewGateway creates a new Anthropic gateway using the official client.
func NewGateway(optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Gateway{client: &client, opts: opts}
}

// NewGatewayFromClient creates a new Anthropic gateway from an existing client.
func NewGatewayFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

// Think implements the blocking decision call against the Messages API.
func (g *Gateway) Think(ctx context.Context, req model.ThinkRequest) (*model.Decision, error) {
	params := anthropic.MessageNewParams{
		Model:       g.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
	}
	if blocks := systemBlocks(req.SystemPrompt, req.Messages); len(blocks) > 0 {
		params.System = blocks
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	decision := &model.Decision{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				if decision.Text != "" {
					decision.Text += "\n"
				}
				decision.Text += textBlock.Text
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			decision.ToolCalls = append(decision.ToolCalls, model.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}
	return decision, nil
}

// Narrate is not implemented for the Anthropic adapter yet.
// TODO: implement via the Messages streaming API (MessageStreamEvent handling
// with partial text accumulation).
func (g *Gateway) Narrate(ctx context.Context, req model.NarrateRequest) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)
	close(out)
	errCh <- fmt.Errorf("streaming not yet implemented for anthropic gateway")
	close(errCh)
	return out, errCh
}

// Info returns metadata describing this Anthropic gateway implementation.
func (g *Gateway) Info() model.Info {
	return model.Info{Name: string(g.opts.Model), Provider: "anthropic"}
}

// buildMessages converts the session log into Anthropic messages. System
// messages are handled separately; a tool result carrying a call id becomes
// an assistant tool_use block followed by a user tool_result block, which is
// the ordering the Messages API requires.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleUser:
			if m.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
			}
		case core.RoleAssistant:
			if m.Text != "" {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
			}
		case core.RoleTool:
			if m.ToolUse == nil || m.ToolUse.CallID == "" {
				if m.Text != "" {
					messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
				}
				continue
			}
			var input interface{}
			if m.ToolUse.Arguments != "" {
				if err := json.Unmarshal([]byte(m.ToolUse.Arguments), &input); err != nil {
					input = m.ToolUse.Arguments
				}
			}
			messages = append(messages, anthropic.NewAssistantMessage(
				anthropic.NewToolUseBlock(m.ToolUse.CallID, input, m.ToolUse.Name),
			))
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolUse.CallID, m.ToolUse.Result, m.ToolUse.IsError),
			))
		default:
			if m.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
			}
		}
	}
	return messages
}

// systemBlocks collects the configured system prompt plus any system messages
// from the log into Anthropic system text blocks.
func systemBlocks(systemPrompt string, msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if systemPrompt != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: systemPrompt})
	}
	for _, m := range msgs {
		if m.Role == core.RoleSystem && m.Text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Text})
		}
	}
	return blocks
}

// buildTools converts generic tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := params["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []interface{}:
					var names []string
					for _, r := range req {
						if s, ok := r.(string); ok {
							names = append(names, s)
						}
					}
					inputSchema.Required = names
				}
			}
		}
		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
	}
	return anthropicTools
}
