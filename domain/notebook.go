package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrNotebookFormat is returned when a notebook does not follow the profile layout.
var ErrNotebookFormat = errors.New("notebook does not match the profile layout")

const sectionMarker = "```json"

// NotebookCell is one cell of a Jupyter notebook (nbformat 4).
type NotebookCell struct {
	Type   string
	Source string
}

type rawNotebook struct {
	Cells []struct {
		CellType string          `json:"cell_type"`
		Source   json.RawMessage `json:"source"`
	} `json:"cells"`
}

// ParseNotebook decodes .ipynb bytes into cells. Cell sources may be stored either as
// one string or as a list of lines; both are joined into a single string.
func ParseNotebook(data []byte) ([]NotebookCell, error) {
	var nb rawNotebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("%w: unable to read notebook: %v", ErrNotebookFormat, err)
	}
	cells := make([]NotebookCell, 0, len(nb.Cells))
	for i, c := range nb.Cells {
		src, err := cellSource(c.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrNotebookFormat, i, err)
		}
		cells = append(cells, NotebookCell{Type: c.CellType, Source: src})
	}
	return cells, nil
}

func cellSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("source is neither a string nor a list of strings")
	}
	return strings.Join(parts, ""), nil
}

// ProfileSections extracts the sections of a reference notebook.
//
// The first cell must be markdown and holds the task description. Each section is a
// markdown cell containing a ```json block followed directly by a code cell; cells that
// do not fit the pattern are skipped. Sections are numbered from 0 in notebook order.
func ProfileSections(profileID string, cells []NotebookCell) ([]ProfileSection, error) {
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: notebook contains no cells", ErrNotebookFormat)
	}
	if cells[0].Type != "markdown" {
		return nil, fmt.Errorf("%w: first cell must be a markdown description", ErrNotebookFormat)
	}
	description := strings.TrimSpace(cells[0].Source)

	var sections []ProfileSection
	for i := 1; i < len(cells)-1; i++ {
		desc := cells[i]
		if desc.Type != "markdown" || !strings.Contains(desc.Source, sectionMarker) {
			continue
		}
		code := cells[i+1]
		if code.Type != "code" {
			log.Printf("notebook: description cell %d not followed by a code cell, skipping", i)
			continue
		}
		sections = append(sections, ProfileSection{
			ProfileID:          profileID,
			Index:              len(sections),
			ProfileDescription: description,
			Description:        strings.TrimSpace(desc.Source),
			Code:               code.Source,
		})
		i++
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no description/code section pairs after the task description", ErrNotebookFormat)
	}
	return sections, nil
}
