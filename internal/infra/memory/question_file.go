package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trivia-sync-service/internal/domain"
)

type questionFile struct {
	Sets []domain.QuestionSet `yaml:"sets"`
}

// LoadQuestionFile reads question sets from YAML. Questions keep file order, and the
// correct answer is normalized to an upper-case option.
func LoadQuestionFile(path string) ([]domain.QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question file: %w", err)
	}
	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse question file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Sets))
	for i := range file.Sets {
		set := &file.Sets[i]
		if set.ID == "" {
			return nil, domain.Invalid("id", fmt.Sprintf("set %d has no id", i+1))
		}
		if seen[set.ID] {
			return nil, domain.Invalid("id", fmt.Sprintf("duplicate set %s", set.ID))
		}
		seen[set.ID] = true

		for j := range set.Questions {
			q := &set.Questions[j]
			q.QuestionSetID = set.ID
			q.OrderIndex = j
			if q.ID == "" {
				q.ID = fmt.Sprintf("%s-q%d", set.ID, j+1)
			}
			opt, err := domain.ParseOption(string(q.CorrectAnswer))
			if err != nil {
				return nil, fmt.Errorf("set %s question %s: %w", set.ID, q.ID, err)
			}
			q.CorrectAnswer = opt
			for _, o := range domain.Options {
				if q.Options[o] == "" {
					return nil, domain.Invalid("options", fmt.Sprintf("set %s question %s lacks option %s", set.ID, q.ID, o))
				}
			}
		}
	}
	return file.Sets, nil
}
