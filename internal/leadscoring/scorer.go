package leadscoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/optilead/internal/ollama"
)

const scoringTimeout = 2 * time.Minute

// Defaults used when the model omits a field.
const (
	DefaultPriority  = "Low"
	DefaultRationale = "No rationale provided."
)

// Chatter is the chat completion surface of the Ollama client.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// Input describes the lead to score.
type Input struct {
	LeadData              string `json:"leadData"`
	ScoringRules          string `json:"scoringRules"`
	DataValidationResults string `json:"dataValidationResults,omitempty"`
}

// Validate reports missing required fields.
func (in Input) Validate() error {
	if strings.TrimSpace(in.LeadData) == "" || strings.TrimSpace(in.ScoringRules) == "" {
		return errors.New("leadData and scoringRules are required")
	}
	return nil
}

// Output is the parsed score.
type Output struct {
	LeadScore float64 `json:"leadScore"`
	Priority  string  `json:"priority"`
	Rationale string  `json:"rationale"`
}

// Scorer asks a local LLM to score leads against user-defined rules.
type Scorer struct {
	client Chatter
	model  string
	logger *slog.Logger
}

// NewScorer creates a Scorer using the given client and model name.
// logger may be nil.
func NewScorer(client Chatter, model string, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{client: client, model: model, logger: logger}
}

// Score runs the scoring prompt and parses the reply. LLM failures are
// returned; a reply missing some fields yields the defaults for those fields.
func (s *Scorer) Score(ctx context.Context, in Input) (Output, error) {
	if err := in.Validate(); err != nil {
		return Output{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, scoringTimeout)
	defer cancel()

	raw, err := s.client.Chat(ctx, s.model, BuildPrompt(in))
	if err != nil {
		return Output{}, fmt.Errorf("scoring lead: %w", err)
	}

	out := Parse(raw)
	s.logger.Debug("lead scored", "model", s.model, "score", out.LeadScore, "priority", out.Priority)
	return out, nil
}

var (
	scoreLine     = regexp.MustCompile(`leadScore: (.+)`)
	priorityLine  = regexp.MustCompile(`priority: (.+)`)
	rationaleLine = regexp.MustCompile(`rationale: (.+)`)
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// Parse extracts the leadScore, priority and rationale lines from text.
func Parse(text string) Output {
	out := Output{Priority: DefaultPriority, Rationale: DefaultRationale}

	if m := scoreLine.FindStringSubmatch(text); m != nil {
		out.LeadScore = parseLeadingFloat(m[1])
	}
	if m := priorityLine.FindStringSubmatch(text); m != nil {
		if p := strings.TrimSpace(m[1]); p != "" {
			out.Priority = p
		}
	}
	if m := rationaleLine.FindStringSubmatch(text); m != nil {
		if r := strings.TrimSpace(m[1]); r != "" {
			out.Rationale = r
		}
	}
	return out
}

// parseLeadingFloat reads the numeric prefix of s, ignoring trailing text
// such as "/100". Unparseable input yields 0.
func parseLeadingFloat(s string) float64 {
	num := leadingNumber.FindString(strings.TrimSpace(s))
	if num == "" {
		return 0
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return f
}
