package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trivia-sync-service/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadQuestionFile(t *testing.T) {
	path := writeFile(t, `
sets:
  - id: genesis
    title: Genesis
    questions:
      - prompt: Who built the ark?
        options: {A: Noah, B: Moses, C: Abraham, D: David}
        correct: a
        verse: {reference: "Genesis 6:14"}
      - id: tower
        prompt: Which city had the tower?
        options: {A: Ur, B: Babel, C: Nineveh, D: Jericho}
        correct: B
`)
	sets, err := LoadQuestionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sets) != 1 || len(sets[0].Questions) != 2 {
		t.Fatalf("unexpected sets: %+v", sets)
	}
	first, second := sets[0].Questions[0], sets[0].Questions[1]
	if first.ID != "genesis-q1" || first.CorrectAnswer != domain.OptionA || first.Verse.Reference != "Genesis 6:14" {
		t.Fatalf("unexpected first question: %+v", first)
	}
	if second.ID != "tower" || second.OrderIndex != 1 || second.QuestionSetID != "genesis" {
		t.Fatalf("unexpected second question: %+v", second)
	}

	loader := NewStaticQuestionLoader(sets...)
	if _, err := loader.LoadQuestionSet(context.Background(), "genesis"); err != nil {
		t.Fatalf("static loader: %v", err)
	}
}

func TestLoadQuestionFileRejectsBadQuestions(t *testing.T) {
	cases := map[string]string{
		"bad correct": `
sets:
  - id: s
    questions:
      - prompt: x
        options: {A: a, B: b, C: c, D: d}
        correct: E
`,
		"missing option": `
sets:
  - id: s
    questions:
      - prompt: x
        options: {A: a, B: b, C: c}
        correct: A
`,
		"duplicate set": `
sets:
  - id: s
  - id: s
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadQuestionFile(writeFile(t, body)); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
