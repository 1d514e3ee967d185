package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"data-sculptor/config"
	"data-sculptor/domain"
)

// HTTPClient is a client for the static-analysis service. It uploads the code as a
// Python file and receives LSP diagnostics that already carry their ranges.
type HTTPClient struct {
	httpClient *http.Client
	url        string
	fieldName  string
}

// analyzeResponse represents the structure of the JSON response from the analysis service.
type analyzeResponse struct {
	Diagnostics []lspDiagnostic `json:"diagnostics"`
}

type lspDiagnostic struct {
	Range    domain.Range    `json:"range"`
	Severity int             `json:"severity"`
	Code     json.RawMessage `json:"code"`
	Source   string          `json:"source"`
	Message  string          `json:"message"`
}

// NewHTTPClient creates a new HTTPClient for cfg.URL.
func NewHTTPClient(cfg config.AnalyzerConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("analyzer url is not set")
	}
	field := cfg.FieldName
	if field == "" {
		field = "code_file"
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		fieldName:  field,
	}, nil
}

// Analyze uploads code and returns the diagnostics of every linter the service runs.
//
// Transport failures and 5xx responses wrap domain.ErrCollaboratorTransient.
func (c *HTTPClient) Analyze(ctx context.Context, code string) ([]domain.ToolDiagnostic, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile(c.fieldName, "cell.py")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.WriteString(part, code); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to make analyzer request: %v", domain.ErrCollaboratorTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("analyzer error (status code %d): %s", resp.StatusCode, string(msg))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %v", domain.ErrCollaboratorTransient, err)
		}
		return nil, err
	}

	var ar analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("failed to parse analyzer response: %w", err)
	}

	out := make([]domain.ToolDiagnostic, 0, len(ar.Diagnostics))
	for _, d := range ar.Diagnostics {
		out = append(out, domain.ToolDiagnostic{
			Range:    d.Range,
			Severity: d.Severity,
			Code:     diagnosticCode(d.Code),
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return out, nil
}

// diagnosticCode accepts the LSP "code" field as either a string or a number.
func diagnosticCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
