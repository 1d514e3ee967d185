package domain

import "context"

// ProfileSection is one section of a reference ("profile") notebook: what the learner
// is asked to do there and the canonical code for it.
type ProfileSection struct {
	ProfileID          string    `json:"profile_id"`
	Index              int       `json:"section_index"`
	ProfileDescription string    `json:"profile_description"`
	Description        string    `json:"description"`
	Code               string    `json:"code"`
	Embedding          Embedding `json:"embedding,omitempty"`
}

// SectionRepository stores and resolves profile sections.
type SectionRepository interface {
	// GetSection returns the section, or an error wrapping ErrNotFound.
	GetSection(ctx context.Context, profileID string, index int) (ProfileSection, error)
	// UpsertSections adds or replaces sections.
	UpsertSections(ctx context.Context, sections []ProfileSection) error
}
