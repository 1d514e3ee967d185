package httpapi

import (
	"data-sculptor/domain"
)

type feedbackRequest struct {
	CurrentCode     string `json:"current_code"`
	CellCodeOffset  int    `json:"cell_code_offset"`
	SectionIndex    *int   `json:"section_index"`
	ProfileIndex    string `json:"profile_index"`
	UseDeepAnalysis *bool  `json:"use_deep_analysis"`
}

type feedbackResponse struct {
	NonLocalizedFeedback string        `json:"non_localized_feedback"`
	LocalizedFeedback    []wireWarning `json:"localized_feedback"`
}

type localizeRequest struct {
	CurrentCode     string              `json:"current_code"`
	Warnings        []domain.RawWarning `json:"warnings"`
	CellCodeOffset  int                 `json:"cell_code_offset"`
	UseDeepAnalysis bool                `json:"use_deep_analysis"`
}

type localizeResponse struct {
	LocalizedFeedback []wireWarning `json:"localized_feedback"`
}

type chatRequest struct {
	ConversationID              string        `json:"conversation_id"`
	UserID                      string        `json:"user_id"`
	Message                     string        `json:"message"`
	CurrentCode                 string        `json:"current_code"`
	CellCodeOffset              int           `json:"cell_code_offset"`
	CurrentNonLocalizedFeedback string        `json:"current_non_localized_feedback"`
	CurrentLocalizedFeedback    []wireWarning `json:"current_localized_feedback"`
	UseDeepAnalysis             bool          `json:"use_deep_analysis"`
}

type chatResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail    string `json:"detail"`
	Retryable bool   `json:"retryable"`
}

// wireWarning is a LocalizedWarning as LSP clients read it: severity is the LSP number.
type wireWarning struct {
	Range    domain.Range `json:"range"`
	Severity int          `json:"severity"`
	Code     string       `json:"code"`
	Source   string       `json:"source"`
	Message  string       `json:"message"`
}

var lspSeverities = domain.DefaultSeverityMap()

func toWire(ws []domain.LocalizedWarning) []wireWarning {
	out := make([]wireWarning, 0, len(ws))
	for _, w := range ws {
		out = append(out, wireWarning{
			Range:    w.Range,
			Severity: w.Severity.LSP(),
			Code:     w.Code,
			Source:   w.Source,
			Message:  w.Message,
		})
	}
	return out
}

func fromWire(ws []wireWarning) []domain.LocalizedWarning {
	if len(ws) == 0 {
		return nil
	}
	out := make([]domain.LocalizedWarning, 0, len(ws))
	for _, w := range ws {
		out = append(out, domain.LocalizedWarning{
			Range:    w.Range,
			Severity: lspSeverities.Map(w.Severity),
			Code:     w.Code,
			Source:   w.Source,
			Message:  w.Message,
		})
	}
	return out
}
