package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiplanner/internal/ingest"
	"github.com/sells-group/fiplanner/internal/knowledge"
	"github.com/sells-group/fiplanner/internal/model"
	"github.com/sells-group/fiplanner/internal/prompt"
	"github.com/sells-group/fiplanner/internal/structured"
	"github.com/sells-group/fiplanner/pkg/anthropic"
	"github.com/sells-group/fiplanner/pkg/anthropic/mocks"
)

func testConfig() Config {
	return Config{Model: "claude-sonnet-4-5-20250929", MaxTokens: 2048, Temperature: 0.2}
}

func testReference() knowledge.Reference {
	r := decimal.RequireFromString("7.1")
	facts := model.EmptyLiveFacts()
	facts.PPF.Rate = &r
	facts.PPF.AsOf = "2025-07-01"
	facts.PPF.Source = "NSI"
	return knowledge.Reference{
		Facts:    facts,
		Snippets: []model.KnowledgeSnippet{{Text: "PPF has a 15-year lock-in.", Source: "NSI"}},
	}
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_1",
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 500, OutputTokens: 800},
	}
}

func TestGenerate_SingleCall(t *testing.T) {
	mc := mocks.NewMockClient(t)
	p := New(mc, testReference(), testConfig())
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	req := Request{Profile: model.DefaultProfile(), DocumentContext: "Basic pay 60000"}

	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.Model == "claude-sonnet-4-5-20250929" &&
			r.MaxTokens == 2048 &&
			r.Temperature != nil && *r.Temperature == 0.2 &&
			r.System == prompt.SystemInstruction &&
			len(r.Messages) == 1 && r.Messages[0].Role == "user" &&
			strings.Contains(r.Messages[0].Content, "- PPF rate: 7.1% (as of 2025-07-01, NSI)") &&
			strings.Contains(r.Messages[0].Content, "- EPF rate: Not available") &&
			strings.Contains(r.Messages[0].Content, "Basic pay 60000")
	})).Return(textResponse("  ## Plan\nSave ₹20,000 a month.  "), nil).Once()

	res, err := p.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "## Plan\nSave ₹20,000 a month.", res.Text)
	assert.Equal(t, "claude-sonnet-4-5-20250929", res.Model)
	assert.Equal(t, int64(500), res.InputTokens)
	assert.Equal(t, int64(800), res.OutputTokens)
	assert.Equal(t, fixed, res.CreatedAt)
	assert.Equal(t, req.Profile, res.Profile)
}

func TestGenerate_CompletionError(t *testing.T) {
	mc := mocks.NewMockClient(t)
	p := New(mc, testReference(), testConfig())

	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("anthropic: create message: 401 unauthorized")).Once()

	res, err := p.Generate(context.Background(), Request{Profile: model.DefaultProfile()})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsCompletion(err))
	assert.Contains(t, err.Error(), "planner: completion failed")
	assert.Contains(t, err.Error(), "401 unauthorized")
}

func TestGenerate_CompletionErrorKeepsCause(t *testing.T) {
	mc := mocks.NewMockClient(t)
	p := New(mc, testReference(), testConfig())

	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded).Once()

	_, err := p.Generate(context.Background(), Request{Profile: model.DefaultProfile()})
	require.Error(t, err)
	assert.True(t, IsCompletion(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	mc := mocks.NewMockClient(t)
	p := New(mc, testReference(), testConfig())

	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil).Once()

	_, err := p.Generate(context.Background(), Request{Profile: model.DefaultProfile()})
	assert.True(t, IsCompletion(err))
	assert.Contains(t, err.Error(), "empty response")
}

func TestGenerate_InvalidProfileSkipsCall(t *testing.T) {
	mc := mocks.NewMockClient(t)
	p := New(mc, testReference(), testConfig())

	profile := model.DefaultProfile()
	profile.Age = 12

	_, err := p.Generate(context.Background(), Request{Profile: profile})
	assert.ErrorIs(t, err, model.ErrInvalidProfile)
	assert.False(t, IsCompletion(err))
	assert.Contains(t, err.Error(), "age 12 outside 18-70")
	mc.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestGenerate_NoClient(t *testing.T) {
	p := New(nil, testReference(), testConfig())
	_, err := p.Generate(context.Background(), Request{Profile: model.DefaultProfile()})
	assert.ErrorIs(t, err, ErrNoClient)
	assert.False(t, IsCompletion(err))
}

func TestIsCompletion(t *testing.T) {
	assert.False(t, IsCompletion(nil))
	assert.False(t, IsCompletion(errors.New("other")))
	assert.True(t, IsCompletion(&CompletionError{Err: errors.New("boom")}))
}

func TestPrompt_DegradedReference(t *testing.T) {
	p := New(nil, knowledge.Reference{Facts: model.EmptyLiveFacts()}, testConfig())
	out := p.Prompt(Request{Profile: model.DefaultProfile()})
	assert.Contains(t, out, "- PPF rate: Not available (as of Not available, Not available)")
	assert.Contains(t, out, prompt.NoSnippets)
}

func TestApplyUpload(t *testing.T) {
	req := Request{Profile: model.DefaultProfile(), DocumentContext: "earlier"}
	applied := req.ApplyUpload(ingest.Result{
		Overrides: model.StructuredOverride{model.FieldIncome: 125000, model.FieldAge: 41},
		Chunks:    []string{"salary 125000", "EPF 1800"},
	})

	assert.Equal(t, []string{model.FieldAge, model.FieldIncome}, applied)
	assert.Equal(t, 41, req.Profile.Age)
	assert.True(t, req.Profile.MonthlyIncome.Equal(decimal.NewFromInt(125000)))
	assert.Equal(t, "earlier"+ingest.ChunkSeparator+"salary 125000"+ingest.ChunkSeparator+"EPF 1800", req.DocumentContext)
}

func TestApplyUpload_Empty(t *testing.T) {
	req := Request{Profile: model.DefaultProfile()}
	applied := req.ApplyUpload(ingest.Result{})
	assert.Empty(t, applied)
	assert.Empty(t, req.DocumentContext)
	assert.Equal(t, model.DefaultProfile(), req.Profile)
}

func TestStructured(t *testing.T) {
	p := New(nil, testReference(), testConfig())

	out := p.Structured(&model.PlanResult{Text: "Here you go:\n```json\n{\"monthly_savings\": 25000}\n```"})
	require.True(t, out.Found)
	assert.Equal(t, structured.MethodBraceBlock, out.Method)
	assert.Equal(t, 25000.0, out.Data["monthly_savings"])

	out = p.Structured(&model.PlanResult{Text: "Plain prose only."})
	assert.False(t, out.Found)
	assert.Equal(t, structured.ReasonNoBraces, out.Reason)

	assert.Equal(t, structured.ReasonEmpty, p.Structured(nil).Reason)
}

func TestStructured_RepairOptIn(t *testing.T) {
	broken := &model.PlanResult{Text: "Summary {\"equity\": 60, \"debt\": 30,} done"}

	plain := New(nil, testReference(), testConfig())
	assert.False(t, plain.Structured(broken).Found)

	cfg := testConfig()
	cfg.RepairJSON = true
	repaired := New(nil, testReference(), cfg).Structured(broken)
	require.True(t, repaired.Found)
	assert.Equal(t, structured.MethodRepaired, repaired.Method)
	assert.Equal(t, 60.0, repaired.Data["equity"])
}
