package domain

import "context"

// StaticAnalyzer runs structural linters over code and returns their
// already-localized diagnostics.
type StaticAnalyzer interface {
	Analyze(ctx context.Context, code string) ([]ToolDiagnostic, error)
}
