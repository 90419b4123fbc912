// Package genaiengine implements pipeline.Engine by calling Gemini directly
// per step, grounded on the same genai.Client calling convention used
// elsewhere in this codebase's LLM clients: functional-options
// construction, a single GenerateContent call per request, and
// text-extraction from the response's first candidate.
package genaiengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
	"github.com/aiobjectives/report-worker/internal/pipeline"
)

const defaultModel = "gemini-2.0-flash"

// contentGenerator is the single genai.Client method this package calls,
// narrowed to an interface so tests can inject a scripted generator instead
// of constructing a real client with live credentials.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// clientFactory builds the per-run contentGenerator from a job's API key.
// Swappable in tests; defaults to a real genai.Client.
type clientFactory func(ctx context.Context, apiKey string) (contentGenerator, error)

func defaultClientFactory(ctx context.Context, apiKey string) (contentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Engine calls Gemini once per pipeline step. JobMessage.apiKey/model
// (carried through pipeline.Input) select per-job credentials and model,
// so a new genai.Client is constructed per run rather than shared globally.
type Engine struct {
	logger    *obslog.Logger
	limiter   *rate.Limiter
	newClient clientFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithRateLimit caps outbound GenerateContent calls per second across all
// steps of a run, the same defensive throttle this codebase's other
// rate-limited API clients (asx, navexa, eodhd) apply to their own
// upstreams.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(e *Engine) {
		if requestsPerSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *obslog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New constructs a genai-backed Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: obslog.Silent(), limiter: rate.NewLimiter(rate.Inf, 1), newClient: defaultClientFactory}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// withClientFactory overrides how a per-run contentGenerator is built.
// Unexported: only this package's tests need to inject a fake.
func withClientFactory(f clientFactory) Option {
	return func(e *Engine) { e.newClient = f }
}

var _ pipeline.Engine = (*Engine)(nil)

// Run implements pipeline.Engine.
func (e *Engine) Run(ctx context.Context, store pipeline.StateStore, in pipeline.Input) pipeline.Result {
	state, cerr := store.GetState(ctx, in.ReportID)
	if cerr != nil {
		return pipeline.Result{Success: false, Err: cerr}
	}
	if state == nil || !in.ResumeFromState {
		state = model.NewPipelineState(in.ReportID)
	}

	client, err := e.newClient(ctx, in.APIKey)
	if err != nil {
		return pipeline.Result{Success: false, State: state, Err: fmt.Errorf("construct genai client: %w", err)}
	}

	modelName := in.Model
	if modelName == "" {
		modelName = defaultModel
	}

	terminal := model.TerminalStep(in.Options.CruxesEnabled)
	plan := model.Plan(in.Options.CruxesEnabled)

	for _, step := range plan {
		if in.ResumeFromState && state.StepCompleted(step) {
			continue
		}

		started := time.Now()
		state.CurrentStep = step
		state.StepAnalytics[step] = model.StepAnalytics{Status: model.StepInProgress, StartedAt: ptrTime(started)}

		result, tokens, err := e.runStep(ctx, client, modelName, step, in, state.CompletedResults)
		if err == nil {
			result, err = parseStepResult(step, result)
		}
		completed := time.Now()
		if err != nil {
			state.StepAnalytics[step] = model.StepAnalytics{
				Status:       model.StepFailed,
				StartedAt:    ptrTime(started),
				CompletedAt:  ptrTime(completed),
				DurationMS:   completed.Sub(started).Milliseconds(),
				ErrorMessage: err.Error(),
			}
			state.Status = model.RunFailed
			_ = store.SaveState(ctx, state)
			return pipeline.Result{Success: false, State: state, Err: err}
		}

		state.CompletedResults[step] = result
		state.StepAnalytics[step] = model.StepAnalytics{
			Status:      model.StepCompleted,
			StartedAt:   ptrTime(started),
			CompletedAt: ptrTime(completed),
			DurationMS:  completed.Sub(started).Milliseconds(),
			Tokens:      tokens,
		}
		state.Recompute(terminal)
		if cerr := store.SaveState(ctx, state); cerr != nil {
			return pipeline.Result{Success: false, State: state, Err: cerr}
		}
	}

	outputs := &pipeline.Outputs{}
	if res, ok := state.CompletedResults[model.StepDedup]; ok {
		if tree, ok := res.Data.(model.SortedTree); ok {
			outputs.SortedTree = tree
		}
	}
	if res, ok := state.CompletedResults[model.StepCruxes]; ok {
		outputs.Cruxes = res.Data
	}

	return pipeline.Result{Success: true, State: state, Outputs: outputs}
}

// runStep builds the prompt envelope for one step, issues the rate-limited
// GenerateContent call, and returns the response text as the step's raw
// result; Run parses it with parseStepResult.
func (e *Engine) runStep(ctx context.Context, client contentGenerator, modelName string, step model.StepName, in pipeline.Input, prior map[model.StepName]model.StepResult) (model.StepResult, int64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return model.StepResult{}, 0, fmt.Errorf("pipeline rate limiter: %w", err)
	}

	prompt := buildStepPrompt(step, in, prior)
	e.logger.Debug().Str("step", string(step)).Str("model", modelName).Msg("pipeline: invoking genai step")

	resp, err := client.GenerateContent(ctx, modelName, genai.Text(prompt), nil)
	if err != nil {
		return model.StepResult{}, 0, fmt.Errorf("genai step %s: %w", step, err)
	}

	text, err := extractText(resp)
	if err != nil {
		return model.StepResult{}, 0, fmt.Errorf("genai step %s: %w", step, err)
	}

	var tokens int64
	if resp.UsageMetadata != nil {
		tokens = int64(resp.UsageMetadata.TotalTokenCount)
	}

	return model.StepResult{Step: step, Data: text}, tokens, nil
}

// buildStepPrompt composes the per-step instruction plus the results of every
// step completed so far (if any) and the raw comment set for the first step. It shapes the
// request envelope only — the clustering/claims/dedup/summaries/cruxes
// semantics themselves live in the model's response, not in this code.
func buildStepPrompt(step model.StepName, in pipeline.Input, prior map[model.StepName]model.StepResult) string {
	instruction := stepInstruction(step, in.Instructions)
	payload := struct {
		Comments []model.CommentRecord         `json:"comments,omitempty"`
		Prior    map[model.StepName]model.StepResult `json:"prior,omitempty"`
	}{}
	if step == model.StepClustering {
		payload.Comments = in.Comments
	}
	if len(prior) > 0 {
		payload.Prior = prior
	}
	data, _ := json.Marshal(payload)
	return fmt.Sprintf("%s\n\n%s\n\nInput:\n%s", in.Instructions.System, instruction, string(data))
}

func stepInstruction(step model.StepName, ins model.PipelineInstructions) string {
	switch step {
	case model.StepClustering:
		return ins.Clustering
	case model.StepClaims:
		return ins.Extraction
	case model.StepDedup:
		return ins.Dedup
	case model.StepSummaries:
		return ins.Summaries
	case model.StepCruxes:
		return ins.Crux
	default:
		return ""
	}
}

// extractText mirrors this codebase's extractTextFromResponse helper:
// concatenate every text part of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text, nil
}

// parseStepResult decodes the raw genai text into the structured shape the
// rest of the pipeline expects. The clustering/claims/summaries steps pass
// their text through untouched — they feed the next step's prompt, not a
// final output field — while dedup and cruxes, whose output is published
// directly into the artifact, are parsed as JSON.
func parseStepResult(step model.StepName, result model.StepResult) (model.StepResult, error) {
	text, ok := result.Data.(string)
	if !ok {
		return result, nil
	}
	switch step {
	case model.StepDedup:
		var tree model.SortedTree
		if err := json.Unmarshal([]byte(text), &tree); err != nil {
			return result, fmt.Errorf("parse dedup step output as sorted tree: %w", err)
		}
		result.Data = tree
	case model.StepCruxes:
		var cruxes interface{}
		if err := json.Unmarshal([]byte(text), &cruxes); err != nil {
			return result, fmt.Errorf("parse cruxes step output: %w", err)
		}
		result.Data = cruxes
	}
	return result, nil
}

func ptrTime(t time.Time) *time.Time { return &t }
