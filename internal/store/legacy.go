package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// Legacy evidence kinds as written by the original response capture.
var legacyEvidenceKinds = map[string]schemas.EvidenceType{
	"url":      schemas.EvidenceLink,
	"link":     schemas.EvidenceLink,
	"ticket":   schemas.EvidenceTicket,
	"jira":     schemas.EvidenceTicket,
	"log":      schemas.EvidenceLog,
	"runbook":  schemas.EvidenceRunbook,
	"policy":   schemas.EvidencePolicy,
	"document": schemas.EvidenceDocument,
	"doc":      schemas.EvidenceDocument,
	"file":     schemas.EvidenceDocument,
}

// legacyMaturity maps the numeric 0-4 scale and the text labels onto MaturityLevel.
var legacyMaturity = map[string]schemas.MaturityLevel{
	"0": schemas.MaturityNone, "none": schemas.MaturityNone,
	"1": schemas.MaturityAdHoc, "ad_hoc": schemas.MaturityAdHoc, "ad hoc": schemas.MaturityAdHoc, "adhoc": schemas.MaturityAdHoc,
	"2": schemas.MaturityDefined, "defined": schemas.MaturityDefined,
	"3": schemas.MaturityEnforced, "enforced": schemas.MaturityEnforced,
	"4": schemas.MaturityAutomated, "automated": schemas.MaturityAutomated,
}

// legacyBool accepts the yes/no spellings plus the 1/0 the old capture wrote
// for checkbox questions.
var legacyBool = map[string]bool{
	"yes": true, "true": true, "y": true, "1": true,
	"no": false, "false": false, "n": false, "0": false,
}

// legacyAnswer converts one assessment_responses row for a question of type
// answerType. ok is false when the response cannot be interpreted as that type.
func legacyAnswer(questionKey string, answerType schemas.AnswerType, response, evidenceKind, evidenceRef *string) (schemas.Answer, bool) {
	a := schemas.Answer{QuestionID: questionKey}
	if response == nil {
		return a, false
	}
	value := strings.ToLower(strings.TrimSpace(*response))
	switch answerType {
	case schemas.AnswerBoolean:
		b, ok := legacyBool[value]
		if !ok {
			return a, false
		}
		a.Bool = &b
	case schemas.AnswerMaturity:
		m, ok := legacyMaturity[value]
		if !ok {
			return a, false
		}
		a.Maturity = &m
	default:
		return a, false
	}

	if evidenceKind != nil {
		if et, ok := legacyEvidenceKinds[strings.ToLower(strings.TrimSpace(*evidenceKind))]; ok {
			a.Evidence = &schemas.Evidence{Type: et}
			if evidenceRef != nil {
				a.Evidence.Pointer = strings.TrimSpace(*evidenceRef)
			}
		}
	}
	return a, true
}

// loadLegacyAnswers reads the most recent response per question from the
// legacy table. Rows for unknown questions, or that do not fit the question's
// answer type, are skipped.
func (t *pgTx) loadLegacyAnswers(ctx context.Context, runID string, types map[string]schemas.AnswerType) ([]schemas.Answer, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT DISTINCT ON (question_key) question_key, response, evidence_kind, evidence_ref
		FROM assessment_responses WHERE run_id = $1
		ORDER BY question_key, updated_at DESC, id DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load legacy responses for run %s: %w", runID, classify(err))
	}
	defer rows.Close()

	var answers []schemas.Answer
	for rows.Next() {
		var (
			key                         string
			response, kind, evidenceRef *string
		)
		if err := rows.Scan(&key, &response, &kind, &evidenceRef); err != nil {
			return nil, fmt.Errorf("failed to scan legacy response: %w", err)
		}
		a, ok := legacyAnswer(key, types[key], response, kind, evidenceRef)
		if !ok {
			t.store.logger.Warn("Skipping uninterpretable legacy response",
				zap.String("run_id", runID), zap.String("question_key", key))
			continue
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load legacy responses for run %s: %w", runID, classify(err))
	}
	return answers, nil
}
