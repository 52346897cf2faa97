package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/optilead/internal/callservice"
	"github.com/kalambet/optilead/internal/leadscoring"
	"github.com/kalambet/optilead/internal/prompts"
	"github.com/kalambet/optilead/internal/scripts"
	"github.com/kalambet/optilead/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	LLM           Generator
	Model         string
	Scripts       *scripts.Store
	Prompts       storage.PromptStore
	DefaultPrompt *prompts.DefaultLoader
	Calls         CallService // optional; if nil, start_call returns an error
	Scorer        LeadScorer  // optional; if nil, score_lead returns an error
}

// NewMCPServer creates an MCP server exposing scripts, prompts, calls and
// lead scoring as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"optilead",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("optilead: call scripts, system prompts, outbound calls and lead scoring for the sales dashboard."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate",
			mcp.WithDescription("Run a prompt through the local OpenHermes model and return its reply."),
			mcp.WithString("prompt", mcp.Description("Prompt text"), mcp.Required()),
		),
		mcpGenerate(deps),
	)

	s.AddTool(
		mcp.NewTool("list_scripts",
			mcp.WithDescription("List the call scripts held by the server."),
		),
		mcpListScripts(deps),
	)

	s.AddTool(
		mcp.NewTool("add_script",
			mcp.WithDescription("Create a call script."),
			mcp.WithString("title", mcp.Description("Script title"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Script body"), mcp.Required()),
		),
		mcpAddScript(deps),
	)

	s.AddTool(
		mcp.NewTool("list_system_prompts",
			mcp.WithDescription("List saved system prompts."),
		),
		mcpListSystemPrompts(deps),
	)

	s.AddTool(
		mcp.NewTool("add_system_prompt",
			mcp.WithDescription("Save a system prompt for the calling agent."),
			mcp.WithString("title", mcp.Description("Prompt title"), mcp.Required()),
			mcp.WithString("prompt", mcp.Description("Prompt text"), mcp.Required()),
		),
		mcpAddSystemPrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("default_prompt",
			mcp.WithDescription("Return the default system prompt for the calling agent."),
		),
		mcpDefaultPrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("start_call",
			mcp.WithDescription("Start an outbound AI call through the calling service."),
			mcp.WithString("phone_number", mcp.Description("Number to call"), mcp.Required()),
			mcp.WithString("prompt_id", mcp.Description("System prompt id"), mcp.Required()),
			mcp.WithString("prospect_name", mcp.Description("Prospect name")),
			mcp.WithString("voice_id", mcp.Description("Voice id (default \"default\")")),
		),
		mcpStartCall(deps),
	)

	s.AddTool(
		mcp.NewTool("score_lead",
			mcp.WithDescription("Score a lead against scoring rules using the local model."),
			mcp.WithString("lead_data", mcp.Description("Lead details"), mcp.Required()),
			mcp.WithString("scoring_rules", mcp.Description("Rules to score against"), mcp.Required()),
			mcp.WithString("validation_results", mcp.Description("Optional data validation results")),
		),
		mcpScoreLead(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"optilead://default-prompt",
			"Default System Prompt",
			mcp.WithResourceDescription("Default prompt used when no saved prompt is selected"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceDefaultPrompt(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"optilead://scripts",
			"Call Scripts",
			mcp.WithResourceDescription("All call scripts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceScripts(deps),
	)

	return s
}

func mcpGenerate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}

		raw, err := deps.LLM.Generate(ctx, deps.Model, prompt)
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		var resp struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil || resp.Response == "" {
			return mcpText(string(raw)), nil
		}
		return mcpText(resp.Response), nil
	}
}

func mcpListScripts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Scripts.List())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal scripts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddScript(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil || title == "" {
			return mcpError("title is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil || content == "" {
			return mcpError("content is required"), nil
		}

		sc := deps.Scripts.Create(title, content)
		return mcpText(fmt.Sprintf("Created script %s", sc.ID)), nil
	}
}

func mcpListSystemPrompts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := deps.Prompts.ListSystemPrompts(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list prompts: %v", err)), nil
		}
		b, err := json.Marshal(list)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal prompts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddSystemPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil || title == "" {
			return mcpError("title is required"), nil
		}
		text, err := req.RequireString("prompt")
		if err != nil || text == "" {
			return mcpError("prompt is required"), nil
		}

		p, err := deps.Prompts.CreateSystemPrompt(ctx, title, text)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save prompt: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Saved system prompt %s", p.ID)), nil
	}
}

func mcpDefaultPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, _ := deps.DefaultPrompt.Load()
		return mcpText(text), nil
	}
}

func mcpStartCall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Calls == nil {
			return mcpError("calling service not configured"), nil
		}

		call := callservice.Request{
			PhoneNumber:  req.GetString("phone_number", ""),
			PromptID:     req.GetString("prompt_id", ""),
			ProspectName: req.GetString("prospect_name", ""),
			VoiceID:      req.GetString("voice_id", ""),
		}
		if err := call.Validate(deps.Calls.Format()); err != nil {
			return mcpError(err.Error()), nil
		}

		resp, err := deps.Calls.StartCall(ctx, call)
		if err != nil {
			return mcpError(fmt.Sprintf("start call failed: %v", err)), nil
		}
		if resp.StatusCode >= 400 {
			return mcpError(fmt.Sprintf("calling service returned HTTP %d: %s", resp.StatusCode, resp.Body)), nil
		}
		return mcpText(string(resp.Body)), nil
	}
}

func mcpScoreLead(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Scorer == nil {
			return mcpError("lead scoring not available: no local model configured"), nil
		}

		in := leadscoring.Input{
			LeadData:              req.GetString("lead_data", ""),
			ScoringRules:          req.GetString("scoring_rules", ""),
			DataValidationResults: req.GetString("validation_results", ""),
		}
		if err := in.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		out, err := deps.Scorer.Score(ctx, in)
		if err != nil {
			return mcpError(fmt.Sprintf("scoring failed: %v", err)), nil
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal score: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceDefaultPrompt(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, _ := deps.DefaultPrompt.Load()
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     text,
			},
		}, nil
	}
}

func mcpResourceScripts(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Scripts.List())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal scripts: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
