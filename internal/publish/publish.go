// Package publish splices generated markdown into a README between marker
// comments. Everything outside the markers is preserved byte for byte.
package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bond/tokenash/internal/logger"
)

const (
	// DefaultStartMarker and DefaultEndMarker delimit the managed section.
	DefaultStartMarker = "<!-- TOKENASH:START -->"
	DefaultEndMarker   = "<!-- TOKENASH:END -->"
)

// Publisher rewrites the managed section of one markdown document.
type Publisher struct {
	Path        string
	StartMarker string
	EndMarker   string
}

// New creates a publisher for the document at path with the default
// markers.
func New(path string) *Publisher {
	return &Publisher{
		Path:        path,
		StartMarker: DefaultStartMarker,
		EndMarker:   DefaultEndMarker,
	}
}

// Update replaces the content between the markers with snippet. The file
// and both markers must already exist; a missing marker is an error, never
// an append, so a typo cannot silently grow the document.
func (p *Publisher) Update(snippet string) error {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", p.Path, err)
	}
	content := string(raw)

	startIdx := strings.Index(content, p.StartMarker)
	endIdx := strings.Index(content, p.EndMarker)
	switch {
	case startIdx < 0:
		return fmt.Errorf("%s: start marker %q not found", p.Path, p.StartMarker)
	case endIdx < 0:
		return fmt.Errorf("%s: end marker %q not found", p.Path, p.EndMarker)
	case endIdx < startIdx:
		return fmt.Errorf("%s: end marker precedes start marker", p.Path)
	}

	updated := content[:startIdx+len(p.StartMarker)] +
		"\n" + strings.TrimRight(snippet, "\n") + "\n" +
		content[endIdx:]

	if updated == content {
		logger.Debugw("document unchanged", "path", p.Path)
		return nil
	}
	if err := p.writeAtomic(updated); err != nil {
		return err
	}
	logger.Infow("document updated", "path", p.Path)
	return nil
}

// writeAtomic writes via a temp file in the same directory then renames,
// so a crash never leaves a half-written document.
func (p *Publisher) writeAtomic(content string) error {
	dir := filepath.Dir(p.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	return nil
}
