package application

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"data-sculptor/config"
	"data-sculptor/domain"
)

const defaultEmbeddingBatch = 100

// IndexingService handles the process of parsing, embedding, and indexing profile notebooks.
type IndexingService struct {
	embedder  domain.EmbeddingClient
	sections  domain.SectionRepository
	batchSize int
}

// NewIndexingService creates a new IndexingService.
func NewIndexingService(cfg *config.Config, embedder domain.EmbeddingClient, sections domain.SectionRepository) *IndexingService {
	batch := cfg.Embedding.BatchSize
	if batch <= 0 {
		batch = defaultEmbeddingBatch
	}
	return &IndexingService{
		embedder:  embedder,
		sections:  sections,
		batchSize: batch,
	}
}

// IndexProfile splits a profile notebook into sections, embeds their descriptions and
// upserts them under profileID. It returns the number of indexed sections.
func (s *IndexingService) IndexProfile(ctx context.Context, profileID string, notebook []byte) (int, error) {
	if _, err := uuid.Parse(profileID); err != nil {
		return 0, fmt.Errorf("%w: profile id %q is not a uuid", domain.ErrInvalidInput, profileID)
	}
	cells, err := domain.ParseNotebook(notebook)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	sections, err := domain.ProfileSections(profileID, cells)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	log.Printf("Indexing profile %s: %d sections\n", profileID, len(sections))

	textsToEmbed := make([]string, len(sections))
	for i, section := range sections {
		textsToEmbed[i] = embeddingText(section)
	}

	dim := 0
	for i := 0; i < len(sections); i += s.batchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(i+s.batchSize, len(sections))

		log.Printf("Generating embeddings for batch %d/%d (sections %d-%d)...\n",
			(i/s.batchSize)+1, (len(sections)+s.batchSize-1)/s.batchSize, i+1, end)

		batchTexts := textsToEmbed[i:end]
		batchEmbeddings, err := s.embedder.GenerateEmbeddings(ctx, batchTexts)
		if err != nil {
			return 0, fmt.Errorf("error generating embeddings for batch %d-%d: %w", i+1, end, err)
		}
		if len(batchEmbeddings) != len(batchTexts) {
			return 0, fmt.Errorf("mismatch between number of batch texts (%d) and embeddings (%d)",
				len(batchTexts), len(batchEmbeddings))
		}
		for j, emb := range batchEmbeddings {
			if dim == 0 {
				dim = emb.Dim()
			}
			if emb.Dim() == 0 || emb.Dim() != dim {
				return 0, fmt.Errorf("embedding of section %d has %d dimensions, want %d", i+j, emb.Dim(), dim)
			}
			sections[i+j].Embedding = emb
		}

		log.Printf("Upserting batch of %d sections...\n", len(batchEmbeddings))
		if err := s.sections.UpsertSections(ctx, sections[i:end]); err != nil {
			return 0, fmt.Errorf("error upserting batch %d-%d: %w", i+1, end, err)
		}
	}

	log.Printf("Successfully indexed %d sections of profile %s\n", len(sections), profileID)
	return len(sections), nil
}

// embeddingText combines the task and the section description so that sections of
// different profiles with similar wording still separate.
func embeddingText(s domain.ProfileSection) string {
	task := strings.TrimSpace(s.ProfileDescription)
	if task == "" {
		return s.Description
	}
	return fmt.Sprintf("Task: %s\nSection %d: %s", task, s.Index, s.Description)
}
