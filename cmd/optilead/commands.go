package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/optilead/internal/config"
	"github.com/kalambet/optilead/internal/leadscoring"
	"github.com/kalambet/optilead/internal/scripts"
	"github.com/kalambet/optilead/internal/storage"
	"github.com/kalambet/optilead/internal/subscription"
)

// --- scripts ---

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Manage call scripts",
}

var scriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List call scripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/scripts")
		if err != nil {
			return err
		}

		var list []scripts.Script
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No scripts found.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", colorize(colorCyan, s.ID), s.Title, truncate(s.Content, 60))
		}
		return tw.Flush()
	},
}

var scriptsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a call script",
	Long: `Create a call script.

Examples:
  optilead scripts add --title "Opener" --content "Hi, this is Lisa from Jake Kane Real Estate."
  optilead scripts add --title "Follow-up" --file ./followup.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, err := contentFromFlags(cmd, "content")
		if err != nil {
			return err
		}
		if title == "" || content == "" {
			return errors.New("--title and one of --content or --file are required")
		}
		return createScript(cmd, title, content)
	},
}

var scriptsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace the title and content of a call script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, err := contentFromFlags(cmd, "content")
		if err != nil {
			return err
		}
		if title == "" || content == "" {
			return errors.New("--title and one of --content or --file are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/api/scripts", map[string]string{
			"id":      args[0],
			"title":   title,
			"content": content,
		})
		if err != nil {
			return err
		}

		var s scripts.Script
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSuccess("Updated script %s", s.ID)
		return nil
	},
}

var scriptsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create a call script from a PDF or text file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		content, err := readScriptFile(path)
		if err != nil {
			return err
		}
		printStep("Extracted %d characters from %s", len([]rune(content)), path)
		return createScript(cmd, title, content)
	},
}

func init() {
	for _, c := range []*cobra.Command{scriptsAddCmd, scriptsUpdateCmd} {
		c.Flags().String("title", "", "script title")
		c.Flags().String("content", "", "script content")
		c.Flags().String("file", "", "read script content from a file")
	}
	scriptsImportCmd.Flags().String("title", "", "script title (default: file name)")

	scriptsCmd.AddCommand(scriptsListCmd)
	scriptsCmd.AddCommand(scriptsAddCmd)
	scriptsCmd.AddCommand(scriptsUpdateCmd)
	scriptsCmd.AddCommand(scriptsImportCmd)
}

func createScript(cmd *cobra.Command, title, content string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.post(cmd.Context(), "/api/scripts", map[string]string{
		"title":   title,
		"content": content,
	})
	if err != nil {
		return err
	}

	var s scripts.Script
	if err := decodeJSON(resp, &s); err != nil {
		return err
	}
	printSuccess("Created script %s", s.ID)
	return nil
}

// readScriptFile returns the text of a PDF or plain text file.
func readScriptFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := scripts.ExtractPDFText(f)
		if err != nil {
			return "", fmt.Errorf("extracting text from %s: %w", path, err)
		}
		return text, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", scripts.ErrEmptyDocument
	}
	return text, nil
}

// contentFromFlags returns the inline flag value, or the contents of --file
// when set.
func contentFromFlags(cmd *cobra.Command, inline string) (string, error) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	v, _ := cmd.Flags().GetString(inline)
	return v, nil
}

// --- prompts ---

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage system prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved system prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/system-prompts")
		if err != nil {
			return err
		}

		var list []storage.SystemPrompt
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No system prompts found.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, p := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", colorize(colorCyan, p.ID), p.Title, truncate(p.Prompt, 60))
		}
		return tw.Flush()
	},
}

var promptsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a system prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		text, err := contentFromFlags(cmd, "prompt")
		if err != nil {
			return err
		}
		if title == "" || text == "" {
			return errors.New("--title and one of --prompt or --file are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/system-prompts", map[string]string{
			"title":  title,
			"prompt": text,
		})
		if err != nil {
			return err
		}

		var p storage.SystemPrompt
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		printSuccess("Saved system prompt %s", p.ID)
		return nil
	},
}

var promptsDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the default system prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/default-prompt")
		if err != nil {
			return err
		}

		var result struct {
			Prompt string `json:"prompt"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Prompt)
		return nil
	},
}

func init() {
	promptsAddCmd.Flags().String("title", "", "prompt title")
	promptsAddCmd.Flags().String("prompt", "", "prompt text")
	promptsAddCmd.Flags().String("file", "", "read prompt text from a file")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsAddCmd)
	promptsCmd.AddCommand(promptsDefaultCmd)
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage subscription records in the local store",
}

var usersSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Create or update a user's subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		status, _ := cmd.Flags().GetString("status")
		plan, _ := cmd.Flags().GetString("plan")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		backend, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer backend.Close()

		u := storage.User{
			ID:           args[0],
			Email:        email,
			Subscription: storage.Subscription{Status: status, PlanType: plan},
		}
		if err := backend.SaveUser(cmd.Context(), u); err != nil {
			return err
		}
		printSuccess("Saved user %s (%s, %s plan)", u.ID, status, plan)
		return nil
	},
}

var usersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a user's subscription and feature access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		backend, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer backend.Close()

		res := subscription.NewVerifier(backend, "", nil).VerifyUser(cmd.Context(), args[0])
		if res.StatusCode == 404 {
			return fmt.Errorf("user %s not found", args[0])
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", colorize(colorBold, "Status:"), res.SubscriptionStatus)
		fmt.Fprintf(out, "%s %s\n", colorize(colorBold, "Plan:"), res.PlanType)
		if !res.Success {
			printWarning("%s", res.Error)
			return nil
		}
		for _, f := range subscription.Features() {
			mark := colorize(colorRed, "no")
			if subscription.HasFeatureAccess(res.PlanType, f) {
				mark = colorize(colorGreen, "yes")
			}
			fmt.Fprintf(out, "  %-24s %s\n", f, mark)
		}
		return nil
	},
}

func init() {
	usersSetCmd.Flags().String("email", "", "user email")
	usersSetCmd.Flags().String("status", subscription.StatusActive, "subscription status")
	usersSetCmd.Flags().String("plan", "basic", "plan type (basic or gold)")

	usersCmd.AddCommand(usersSetCmd)
	usersCmd.AddCommand(usersShowCmd)
}

// --- call ---

var callCmd = &cobra.Command{
	Use:   "call <phone-number>",
	Short: "Start an outbound AI call",
	Long: `Start an outbound AI call through the calling service.

Examples:
  optilead call +15550100 --prompt-id 6650f1c2 --name "Ann Lee"
  optilead call +15550100 --twilio`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		promptID, _ := cmd.Flags().GetString("prompt-id")
		name, _ := cmd.Flags().GetString("name")
		voice, _ := cmd.Flags().GetString("voice")
		twilio, _ := cmd.Flags().GetBool("twilio")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if twilio {
			resp, err := client.post(cmd.Context(), "/api/call-prospect", map[string]string{"to_phone": args[0]})
			if err != nil {
				return err
			}
			var res struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			if err := decodeJSON(resp, &res); err != nil {
				return err
			}
			printSuccess("%s", res.Message)
			return nil
		}

		body := map[string]string{
			"phoneNumber": args[0],
			"promptId":    promptID,
		}
		if name != "" {
			body["prospectName"] = name
		}
		if voice != "" {
			body["voiceId"] = voice
		}

		resp, err := client.post(cmd.Context(), "/api/start-call", body)
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Call started for %s", args[0])
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	callCmd.Flags().String("prompt-id", "", "system prompt id for the agent")
	callCmd.Flags().String("name", "", "prospect name")
	callCmd.Flags().String("voice", "", "voice id")
	callCmd.Flags().Bool("twilio", false, "dial through the Twilio endpoint (subscription required)")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send a prompt to OpenHermes through the server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/openhermes", map[string]string{
			"prompt": strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		var result json.RawMessage
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var gen struct {
			Response string `json:"response"`
		}
		if raw || json.Unmarshal(result, &gen) != nil {
			return printJSON(out, result)
		}
		fmt.Fprintln(out, strings.TrimSpace(gen.Response))
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("raw", false, "print the full upstream JSON")
}

// --- score ---

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a lead against rules with the local model",
	Long: `Score a lead against rules with the local model.

Examples:
  optilead score --lead "Acme Corp, 120 employees, budget approved" --rules "Prefer >100 employees"
  optilead score --lead-file lead.txt --rules-file rules.txt --user u_123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := leadscoring.Input{}
		var err error
		if in.LeadData, err = flagOrFile(cmd, "lead", "lead-file"); err != nil {
			return err
		}
		if in.ScoringRules, err = flagOrFile(cmd, "rules", "rules-file"); err != nil {
			return err
		}
		in.DataValidationResults, _ = cmd.Flags().GetString("validation")
		if err := in.Validate(); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/lead-scoring", in)
		if err != nil {
			return err
		}

		var out leadscoring.Output
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %.0f\n", colorize(colorBold, "Score:"), out.LeadScore)
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Priority:"), priorityColor(out.Priority))
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Rationale:"), out.Rationale)
		return nil
	},
}

func init() {
	scoreCmd.Flags().String("lead", "", "lead data")
	scoreCmd.Flags().String("lead-file", "", "read lead data from a file")
	scoreCmd.Flags().String("rules", "", "scoring rules")
	scoreCmd.Flags().String("rules-file", "", "read scoring rules from a file")
	scoreCmd.Flags().String("validation", "", "data validation results")
}

func flagOrFile(cmd *cobra.Command, name, fileFlag string) (string, error) {
	if path, _ := cmd.Flags().GetString(fileFlag); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading --%s: %w", fileFlag, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	v, _ := cmd.Flags().GetString(name)
	return v, nil
}

func priorityColor(p string) string {
	switch strings.ToLower(p) {
	case "high":
		return colorize(colorGreen, p)
	case "medium":
		return colorize(colorYellow, p)
	default:
		return colorize(colorRed, p)
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable configuration keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
}
