package document

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func testLibrary() *Library {
	return NewLibrary(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAddAndGet(t *testing.T) {
	l := testLibrary()
	doc, err := l.Add("notes.txt", []byte("plain text content"), false)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if doc.Text != "plain text content" {
		t.Errorf("text should be the raw bytes for non-PDF files, got %q", doc.Text)
	}

	got, err := l.Get(doc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "notes.txt" || got.Priority {
		t.Errorf("unexpected document: %+v", got)
	}
}

func TestAddRejectsEmptyName(t *testing.T) {
	l := testLibrary()
	if _, err := l.Add("", []byte("content"), false); err == nil {
		t.Error("expected an error for an empty name")
	}
}

func TestAddFallsBackToRawBytesOnBadPDF(t *testing.T) {
	l := testLibrary()
	doc, err := l.Add("broken.pdf", []byte("this is not a pdf"), false)
	if err != nil {
		t.Fatalf("Add should not fail on extraction errors: %v", err)
	}
	if doc.Text != "this is not a pdf" {
		t.Errorf("expected raw bytes fallback, got %q", doc.Text)
	}
}

func TestGetUnknownID(t *testing.T) {
	l := testLibrary()
	if _, err := l.Get(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetPriority(t *testing.T) {
	l := testLibrary()
	doc, err := l.Add("lease.txt", []byte("lease"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.SetPriority(doc.ID, true); err != nil {
		t.Fatalf("SetPriority failed: %v", err)
	}
	got, _ := l.Get(doc.ID)
	if !got.Priority {
		t.Error("priority flag not persisted")
	}

	if err := l.SetPriority(uuid.New(), true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestListOrdersByUploadTime(t *testing.T) {
	l := testLibrary()
	names := []string{"first.txt", "second.txt", "third.txt"}
	for _, n := range names {
		if _, err := l.Add(n, []byte(n), false); err != nil {
			t.Fatal(err)
		}
	}
	docs := l.List()
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for i, n := range names {
		if docs[i].Name != n {
			t.Errorf("position %d: expected %s, got %s", i, n, docs[i].Name)
		}
	}
}

func TestPreambleNamesPriorityDocuments(t *testing.T) {
	l := testLibrary()
	if l.Preamble() != "" {
		t.Error("empty library should produce no preamble")
	}

	l.Add("background.txt", []byte("x"), false)
	if l.Preamble() != "" {
		t.Error("non-priority documents should produce no preamble")
	}

	l.Add("contract.pdf", []byte("x"), true)
	l.Add("ruling.txt", []byte("x"), true)
	p := l.Preamble()
	if !strings.Contains(p, "contract.pdf") || !strings.Contains(p, "ruling.txt") {
		t.Errorf("preamble should name every priority document: %q", p)
	}
	if strings.Contains(p, "background.txt") {
		t.Errorf("preamble should skip non-priority documents: %q", p)
	}
	if !strings.HasSuffix(p, "\n\n") {
		t.Errorf("preamble must end with a blank line so the prompt stays readable: %q", p)
	}
}
