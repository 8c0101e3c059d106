// Package planner turns a profile and optional document context into a
// grounded retirement plan with one completion call.
package planner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiplanner/internal/ingest"
	"github.com/sells-group/fiplanner/internal/knowledge"
	"github.com/sells-group/fiplanner/internal/model"
	"github.com/sells-group/fiplanner/internal/prompt"
	"github.com/sells-group/fiplanner/internal/structured"
	"github.com/sells-group/fiplanner/pkg/anthropic"
)

// ErrNoClient is returned by Generate when no completion client is set.
var ErrNoClient = eris.New("planner: no completion client configured")

// CompletionError marks a failed or empty completion call. The caller may
// retry manually; nothing is retried here.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return e.Err.Error()
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// IsCompletion reports whether err (or any error in its chain) is a
// CompletionError.
func IsCompletion(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce)
}

// Config holds the completion parameters.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	RepairJSON  bool
}

// Request is one plan generation: the session's profile plus any excerpts
// pulled from an uploaded document.
type Request struct {
	Profile         model.UserProfile
	DocumentContext string
}

// ApplyUpload merges an ingest result into the request. Table overrides
// replace profile fields; text chunks are appended to the document context.
// It returns the profile fields that were overridden.
func (r *Request) ApplyUpload(res ingest.Result) []string {
	applied := r.Profile.ApplyOverrides(res.Overrides)
	if ctx := res.Context(); ctx != "" {
		if r.DocumentContext != "" {
			r.DocumentContext += ingest.ChunkSeparator
		}
		r.DocumentContext += ctx
	}
	return applied
}

// Planner builds prompts from the session's reference data and calls the
// completion API.
type Planner struct {
	client anthropic.Client
	ref    knowledge.Reference
	cfg    Config
	now    func() time.Time
}

// New creates a Planner. client may be nil for prompt-only use.
func New(client anthropic.Client, ref knowledge.Reference, cfg Config) *Planner {
	return &Planner{client: client, ref: ref, cfg: cfg, now: time.Now}
}

// Reference returns the reference data loaded for the session.
func (p *Planner) Reference() knowledge.Reference {
	return p.ref
}

// Prompt renders the user prompt for req without calling the API.
func (p *Planner) Prompt(req Request) string {
	return prompt.Build(prompt.Input{
		Profile:         req.Profile,
		Facts:           p.ref.Facts,
		Snippets:        p.ref.Snippets,
		DocumentContext: req.DocumentContext,
	})
}

// Generate validates the profile, renders the prompt and makes exactly one
// completion call.
func (p *Planner) Generate(ctx context.Context, req Request) (*model.PlanResult, error) {
	if err := req.Profile.Validate(); err != nil {
		return nil, eris.Wrap(err, "planner: validate profile")
	}
	if p.client == nil {
		return nil, ErrNoClient
	}

	temp := p.cfg.Temperature
	msgReq := anthropic.MessageRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		System:      prompt.SystemInstruction,
		Messages:    []anthropic.Message{{Role: anthropic.RoleUser, Content: p.Prompt(req)}},
		Temperature: &temp,
	}

	start := p.now()
	resp, err := p.client.CreateMessage(ctx, msgReq)
	if err != nil {
		zap.L().Error("planner: completion call failed", zap.Error(err))
		return nil, eris.Wrap(&CompletionError{Err: err}, "planner: completion failed")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, &CompletionError{Err: eris.Errorf("planner: empty response (stop reason %q)", resp.StopReason)}
	}

	resp.Usage.LogCost(p.cfg.Model, "plan")

	res := &model.PlanResult{
		ID:           uuid.NewString(),
		Text:         text,
		Model:        resp.Model,
		Profile:      req.Profile,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CreatedAt:    p.now().UTC(),
	}
	if res.Model == "" {
		res.Model = p.cfg.Model
	}

	zap.L().Info("planner: plan generated",
		zap.String("plan_id", res.ID),
		zap.String("model", res.Model),
		zap.Int("chars", len(res.Text)),
		zap.Duration("elapsed", p.now().Sub(start)),
	)
	return res, nil
}

// Structured attempts to recover a JSON object embedded in the plan text.
// Finding none is a normal outcome.
func (p *Planner) Structured(res *model.PlanResult) structured.Outcome {
	if res == nil {
		return structured.Parse("")
	}
	var opts []structured.Option
	if p.cfg.RepairJSON {
		opts = append(opts, structured.WithRepair())
	}
	return structured.Parse(res.Text, opts...)
}
