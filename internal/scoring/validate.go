package scoring

import (
	"github.com/xkilldash9x/trustscore/api/schemas"
)

// AnswerTypes maps each question id to its answer type.
func AnswerTypes(questions []schemas.Question) map[string]schemas.AnswerType {
	types := make(map[string]schemas.AnswerType, len(questions))
	for _, q := range questions {
		types[q.ID] = q.Type
	}
	return types
}

// IndexAnswers validates answers against the question set and indexes them
// by question id. Nothing is scored if any answer is rejected.
func IndexAnswers(questions []schemas.Question, answers []schemas.Answer) (map[string]schemas.Answer, error) {
	known := make(map[string]schemas.Question, len(questions))
	for _, q := range questions {
		known[q.ID] = q
	}

	indexed := make(map[string]schemas.Answer, len(answers))
	for i, a := range answers {
		field := "answers"
		q, ok := known[a.QuestionID]
		if !ok {
			return nil, schemas.Invalid(field, "answer %d references unknown question %q", i, a.QuestionID)
		}
		if _, dup := indexed[a.QuestionID]; dup {
			return nil, schemas.Invalid(field, "question %q answered more than once", a.QuestionID)
		}
		switch q.Type {
		case schemas.AnswerBoolean:
			if a.Bool == nil || a.Maturity != nil {
				return nil, schemas.Invalid(field, "question %q requires a boolean answer", q.ID)
			}
		case schemas.AnswerMaturity:
			if a.Maturity == nil || a.Bool != nil {
				return nil, schemas.Invalid(field, "question %q requires a maturity answer", q.ID)
			}
			if a.Maturity.Rank() < 0 {
				return nil, schemas.Invalid(field, "question %q has unknown maturity level %q", q.ID, *a.Maturity)
			}
		}
		if a.Evidence != nil && a.Evidence.Type != "" && !a.Evidence.Type.Valid() {
			return nil, schemas.Invalid(field, "question %q has unknown evidence type %q", q.ID, a.Evidence.Type)
		}
		indexed[a.QuestionID] = a
	}
	return indexed, nil
}
