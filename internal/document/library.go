// Package document holds the context documents a caller can attach to
// orchestration requests. Priority documents are announced at the top of
// every prompt so providers treat them as primary sources.
package document

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

// Document is one uploaded context document.
type Document struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Text     string    `json:"-"`
	Priority bool      `json:"priority"`
	AddedAt  time.Time `json:"added_at"`
}

// Library is an in-memory document set, scoped to the process lifetime.
// Business-record persistence belongs to the surrounding application, not
// this core.
type Library struct {
	log *slog.Logger

	mu   sync.RWMutex
	docs map[uuid.UUID]Document
}

func NewLibrary(log *slog.Logger) *Library {
	return &Library{log: log, docs: make(map[uuid.UUID]Document)}
}

// Add stores a document, extracting text from PDF content when the name
// carries a .pdf extension. Extraction failures fall back to raw bytes.
func (l *Library) Add(name string, content []byte, priority bool) (Document, error) {
	if name == "" {
		return Document{}, fmt.Errorf("document name required")
	}
	text := string(content)
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		extracted, err := extractPDF(content)
		if err != nil {
			l.log.Warn("pdf extraction failed, using raw bytes", "err", err, "name", name)
		} else {
			text = extracted
		}
	}

	doc := Document{
		ID:       uuid.New(),
		Name:     name,
		Text:     text,
		Priority: priority,
		AddedAt:  time.Now(),
	}
	l.mu.Lock()
	l.docs[doc.ID] = doc
	l.mu.Unlock()
	return doc, nil
}

// SetPriority flags or unflags a document as a priority source.
func (l *Library) SetPriority(id uuid.UUID, priority bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc.Priority = priority
	l.docs[id] = doc
	return nil
}

// Get returns one document by id.
func (l *Library) Get(id uuid.UUID) (Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

// List returns all documents ordered by upload time.
func (l *Library) List() []Document {
	l.mu.RLock()
	out := make([]Document, 0, len(l.docs))
	for _, d := range l.docs {
		out = append(out, d)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out
}

// Preamble names the priority documents as a prompt prefix. Empty when no
// document is flagged.
func (l *Library) Preamble() string {
	var names []string
	for _, d := range l.List() {
		if d.Priority {
			names = append(names, d.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "The following documents must be treated as priority sources: " +
		strings.Join(names, ", ") + ".\n\n"
}
