package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"data-sculptor/config"
	"data-sculptor/domain"
)

// FeedbackRequest asks for a full analysis of one code cell.
type FeedbackRequest struct {
	Code string
	// LineOffset is the number of notebook lines before the cell.
	LineOffset int
	// ProfileID and SectionIndex select the reference section the code answers.
	// An empty ProfileID means no reference material.
	ProfileID    string
	SectionIndex int
	Deep         bool
}

// LocalizeRequest asks for ranges of already known warnings.
type LocalizeRequest struct {
	Code       string
	Warnings   []domain.RawWarning
	LineOffset int
	Deep       bool
}

// feedbackAnswer is the structured answer expected from the model.
type feedbackAnswer struct {
	Conceptual []string       `json:"conceptual" jsonschema:"description=High-level remarks about the approach"`
	Warnings   []modelWarning `json:"warnings" jsonschema:"description=Issues tied to specific lines"`
}

type modelWarning struct {
	StartLine   int    `json:"start_line" jsonschema:"description=1-based first line of the issue"`
	EndLine     int    `json:"end_line" jsonschema:"description=1-based last line of the issue (inclusive)"`
	Message     string `json:"message" jsonschema:"description=Short message shown next to the code"`
	Description string `json:"description"`
	Fix         string `json:"fix"`
}

type localizationAnswer struct {
	Localizations []modelLocalization `json:"localizations"`
}

type modelLocalization struct {
	WarningIndex int    `json:"warning_index" jsonschema:"description=1-based number of the warning in the list"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Message      string `json:"message"`
}

// FeedbackService produces feedback snapshots for code that is not tied to a conversation.
type FeedbackService struct {
	llm       domain.LLMClient
	analyzer  domain.StaticAnalyzer
	sections  domain.SectionRepository
	assembler *domain.FeedbackAssembler
	policy    CallPolicy
	severity  domain.SeverityMap

	maxTokens     int
	deepMaxTokens int
}

// NewFeedbackService wires the collaborators. analyzer and sections may be nil; the
// corresponding step is then skipped.
func NewFeedbackService(
	cfg *config.Config,
	llm domain.LLMClient,
	analyzer domain.StaticAnalyzer,
	sections domain.SectionRepository,
	tokenizer domain.CodeTokenizer,
) *FeedbackService {
	return &FeedbackService{
		llm:           llm,
		analyzer:      analyzer,
		sections:      sections,
		assembler:     domain.NewFeedbackAssembler(domain.NewRangeLocator(tokenizer)),
		policy:        NewCallPolicy(cfg.LLM),
		severity:      domain.DefaultSeverityMap(),
		maxTokens:     cfg.LLM.MaxTokens,
		deepMaxTokens: cfg.LLM.DeepMaxTokens,
	}
}

// RequestFeedback validates the request, gathers model and analyzer findings
// concurrently and assembles them into a snapshot of the submitted code.
//
// A collaborator that keeps failing contributes nothing; only an unknown profile
// section or cancellation fail the request.
func (s *FeedbackService) RequestFeedback(ctx context.Context, req FeedbackRequest) (domain.FeedbackSnapshot, error) {
	if strings.TrimSpace(req.Code) == "" {
		return domain.FeedbackSnapshot{}, fmt.Errorf("%w: current_code must not be empty", domain.ErrInvalidInput)
	}
	if req.LineOffset < 0 {
		return domain.FeedbackSnapshot{}, fmt.Errorf("%w: cell_code_offset must not be negative", domain.ErrInvalidInput)
	}
	if req.ProfileID != "" {
		if _, err := uuid.Parse(req.ProfileID); err != nil {
			return domain.FeedbackSnapshot{}, fmt.Errorf("%w: profile_index: %v", domain.ErrInvalidInput, err)
		}
		if req.SectionIndex < 0 {
			return domain.FeedbackSnapshot{}, fmt.Errorf("%w: section_index must not be negative", domain.ErrInvalidInput)
		}
	}

	section, err := s.resolveSection(ctx, req)
	if err != nil {
		return domain.FeedbackSnapshot{}, err
	}

	doc := domain.NewCodeDocument(req.Code, 1)
	var (
		answer feedbackAnswer
		diags  []domain.ToolDiagnostic
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.llm != nil {
		g.Go(func() error {
			a, err := s.askFeedback(gctx, doc, section, req.Deep)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("feedback: model feedback unavailable: %v", err)
				return nil
			}
			answer = a
			return nil
		})
	}
	if s.analyzer != nil {
		g.Go(func() error {
			d, err := s.analyzer.Analyze(gctx, req.Code)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("feedback: static analysis unavailable: %v", err)
				return nil
			}
			diags = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.FeedbackSnapshot{}, err
	}

	for i := range diags {
		diags[i].Range = diags[i].Range.Shift(req.LineOffset)
	}
	return s.assembler.Assemble(domain.AssembleInput{
		Document:    doc,
		Diagnostics: diags,
		Warnings:    answer.rawWarnings(),
		Summary:     conceptualSummary(answer.Conceptual),
		Severities:  s.severity,
		LineOffset:  req.LineOffset,
	}), nil
}

func (s *FeedbackService) resolveSection(ctx context.Context, req FeedbackRequest) (*domain.ProfileSection, error) {
	if req.ProfileID == "" {
		return nil, nil
	}
	if s.sections == nil {
		log.Printf("feedback: no section repository configured, ignoring profile %s", req.ProfileID)
		return nil, nil
	}
	sec, err := s.sections.GetSection(ctx, req.ProfileID, req.SectionIndex)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		log.Printf("feedback: section lookup failed, continuing without it: %v", err)
		return nil, nil
	}
	return &sec, nil
}

func (s *FeedbackService) askFeedback(ctx context.Context, doc domain.CodeDocument, section *domain.ProfileSection, deep bool) (feedbackAnswer, error) {
	out, err := s.policy.Complete(ctx, s.llm, domain.CompletionRequest{
		System:    feedbackSystemPrompt,
		Messages:  []domain.ChatMessage{{Role: domain.RoleUser, Content: feedbackUserPrompt(doc, section)}},
		MaxTokens: s.tokensFor(deep),
		Deep:      deep,
		Output: &domain.StructuredOutput{
			Name:        "code_feedback",
			Description: "Conceptual feedback and line-level warnings for the code",
			Shape:       feedbackAnswer{},
		},
	})
	if err != nil {
		return feedbackAnswer{}, err
	}
	var a feedbackAnswer
	if err := decodeModelJSON(out.Text, &a); err != nil {
		return feedbackAnswer{}, fmt.Errorf("failed to decode model feedback: %w", err)
	}
	return a, nil
}

func (s *FeedbackService) tokensFor(deep bool) int {
	if deep && s.deepMaxTokens > 0 {
		return s.deepMaxTokens
	}
	return s.maxTokens
}

// rawWarnings converts model warnings, whose lines are 1-based, into document-local hints.
func (a feedbackAnswer) rawWarnings() []domain.RawWarning {
	out := make([]domain.RawWarning, 0, len(a.Warnings))
	for _, w := range a.Warnings {
		out = append(out, domain.RawWarning{
			Description: w.Description,
			Fix:         w.Fix,
			Message:     w.Message,
			Hint:        oneBasedHint(w.StartLine, w.EndLine),
		})
	}
	return out
}

func oneBasedHint(start, end int) *domain.LineHint {
	if start <= 0 {
		return nil
	}
	if end < start {
		end = start
	}
	return &domain.LineHint{StartLine: start - 1, EndLine: end - 1}
}

// LocalizeWarnings places known warnings in the code. With Deep set the model is
// asked for line hints first; text matching places whatever it leaves out.
func (s *FeedbackService) LocalizeWarnings(ctx context.Context, req LocalizeRequest) ([]domain.LocalizedWarning, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: current_code must not be empty", domain.ErrInvalidInput)
	}
	if req.LineOffset < 0 {
		return nil, fmt.Errorf("%w: cell_code_offset must not be negative", domain.ErrInvalidInput)
	}
	doc := domain.NewCodeDocument(req.Code, 1)
	warnings := append([]domain.RawWarning(nil), req.Warnings...)

	if req.Deep && s.llm != nil && len(warnings) > 0 {
		if err := s.askHints(ctx, doc, warnings); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("localize: model hints unavailable, matching text only: %v", err)
		}
	}
	out := s.assembler.Locator.Locate(doc, warnings, req.LineOffset)
	if out == nil {
		out = []domain.LocalizedWarning{}
	}
	return out, nil
}

// askHints fills in Hint (and Message, when empty) for the warnings the model localized.
func (s *FeedbackService) askHints(ctx context.Context, doc domain.CodeDocument, warnings []domain.RawWarning) error {
	out, err := s.policy.Complete(ctx, s.llm, domain.CompletionRequest{
		System:    localizeSystemPrompt,
		Messages:  []domain.ChatMessage{{Role: domain.RoleUser, Content: localizeUserPrompt(doc, warnings)}},
		MaxTokens: s.tokensFor(true),
		Deep:      true,
		Output: &domain.StructuredOutput{
			Name:        "warning_localization",
			Description: "One line range per warning",
			Shape:       localizationAnswer{},
		},
	})
	if err != nil {
		return err
	}
	var a localizationAnswer
	if err := decodeModelJSON(out.Text, &a); err != nil {
		return fmt.Errorf("failed to decode model localization: %w", err)
	}
	for _, loc := range a.Localizations {
		i := loc.WarningIndex - 1
		if i < 0 || i >= len(warnings) || warnings[i].Hint != nil {
			continue
		}
		warnings[i].Hint = oneBasedHint(loc.StartLine, loc.EndLine)
		if strings.TrimSpace(warnings[i].Message) == "" {
			warnings[i].Message = strings.TrimSpace(loc.Message)
		}
	}
	return nil
}
