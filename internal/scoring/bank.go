package scoring

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

//go:embed questions.yaml
var embeddedBank []byte

// weightTolerance absorbs float error when summing declared weights.
const weightTolerance = 1e-6

// Bank is the static, versioned question bank keyed by assessment type.
type Bank struct {
	questions map[schemas.AssessmentType][]schemas.Question
	byID      map[schemas.AssessmentType]map[string]schemas.Question
}

type bankFile struct {
	Banks map[schemas.AssessmentType][]schemas.Question `yaml:"banks"`
}

// DefaultBank parses the bank compiled into the binary.
func DefaultBank() (*Bank, error) {
	return ParseBank(embeddedBank)
}

// LoadBank reads a bank from path, or the embedded bank when path is empty.
func LoadBank(path string) (*Bank, error) {
	if path == "" {
		return DefaultBank()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank %s: %w", path, err)
	}
	return ParseBank(data)
}

// ParseBank decodes YAML and validates every question set.
func ParseBank(data []byte) (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	return NewBank(f.Banks)
}

// NewBank validates the question sets and indexes them. The weight-sum
// invariant is enforced here, at load time, never per request.
func NewBank(sets map[schemas.AssessmentType][]schemas.Question) (*Bank, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}
	b := &Bank{
		questions: make(map[schemas.AssessmentType][]schemas.Question, len(sets)),
		byID:      make(map[schemas.AssessmentType]map[string]schemas.Question, len(sets)),
	}
	for t, qs := range sets {
		if !t.Valid() {
			return nil, fmt.Errorf("question bank has unknown assessment type %q", t)
		}
		if err := ValidateQuestions(qs); err != nil {
			return nil, fmt.Errorf("question bank %s: %w", t, err)
		}
		index := make(map[string]schemas.Question, len(qs))
		for _, q := range qs {
			index[q.ID] = q
		}
		b.questions[t] = append([]schemas.Question(nil), qs...)
		b.byID[t] = index
	}
	if _, ok := b.byID[schemas.AssessmentSystem]; ok {
		if err := validateRiskBindings(b.byID[schemas.AssessmentSystem]); err != nil {
			return nil, fmt.Errorf("question bank %s: %w", schemas.AssessmentSystem, err)
		}
	}
	return b, nil
}

// ValidateQuestions checks ids, dimensions, answer types and that each
// dimension's weights sum to 1.0.
func ValidateQuestions(qs []schemas.Question) error {
	seen := make(map[string]struct{}, len(qs))
	sums := make(map[schemas.Dimension]float64)
	for _, q := range qs {
		if q.ID == "" {
			return fmt.Errorf("question with empty id")
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		if !q.Dimension.Valid() {
			return fmt.Errorf("question %q has unknown dimension %q", q.ID, q.Dimension)
		}
		if q.Type != schemas.AnswerBoolean && q.Type != schemas.AnswerMaturity {
			return fmt.Errorf("question %q has unknown answer type %q", q.ID, q.Type)
		}
		if q.Weight <= 0 || q.Weight > 1 {
			return fmt.Errorf("question %q weight %v must be in (0, 1]", q.ID, q.Weight)
		}
		sums[q.Dimension] += q.Weight
	}
	dims := make([]string, 0, len(sums))
	for d := range sums {
		dims = append(dims, string(d))
	}
	sort.Strings(dims)
	for _, d := range dims {
		if sum := sums[schemas.Dimension(d)]; math.Abs(sum-1.0) > weightTolerance {
			return fmt.Errorf("weights for dimension %s sum to %.6f, want 1.0", d, sum)
		}
	}
	return nil
}

// Types lists the assessment types the bank covers.
func (b *Bank) Types() []schemas.AssessmentType {
	types := make([]schemas.AssessmentType, 0, len(b.questions))
	for t := range b.questions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Questions returns the question set for an assessment type.
func (b *Bank) Questions(t schemas.AssessmentType) []schemas.Question {
	return b.questions[t]
}

// Question looks up a single question.
func (b *Bank) Question(t schemas.AssessmentType, id string) (schemas.Question, bool) {
	q, ok := b.byID[t][id]
	return q, ok
}
