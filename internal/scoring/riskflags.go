package scoring

import (
	"fmt"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// Question ids the risk rules are bound to. Renaming any of these in the
// bank fails the bank load.
const (
	QuestionKillSwitch     = "sys.risk.kill_switch"
	QuestionAuditLogging   = "sys.risk.audit_logging"
	QuestionToolSandboxing = "sys.risk.tool_sandboxing"
	QuestionThreatModel    = "sys.risk.threat_model"
)

// Risk flag codes.
const (
	FlagNoKillSwitch       = "no_kill_switch"
	FlagWeakAuditLogging   = "weak_audit_logging"
	FlagUnsandboxedTools   = "unsandboxed_tools"
	FlagMissingThreatModel = "missing_threat_model"
)

// RiskRule maps one bound question to a flag.
type RiskRule struct {
	Flag       schemas.RiskFlag
	QuestionID string
	AnswerType schemas.AnswerType
	// Fires reports whether the flag is raised. a is nil when unanswered.
	Fires func(a *schemas.Answer) bool
}

// RiskRules is the fixed rule table, evaluated in order.
var RiskRules = []RiskRule{
	{
		Flag: schemas.RiskFlag{
			Code:        FlagNoKillSwitch,
			Label:       "No verified kill switch",
			Description: "The system cannot be shown to stop on demand.",
		},
		QuestionID: QuestionKillSwitch,
		AnswerType: schemas.AnswerBoolean,
		Fires: func(a *schemas.Answer) bool {
			if a == nil || a.Bool == nil || !*a.Bool {
				return true
			}
			// A claimed kill switch still fires unless strong evidence backs it.
			return EvidenceCap(a.Evidence) < StrongEvidenceCap
		},
	},
	{
		Flag: schemas.RiskFlag{
			Code:        FlagWeakAuditLogging,
			Label:       "Weak audit logging",
			Description: "Actions taken by the system are not reliably logged.",
		},
		QuestionID: QuestionAuditLogging,
		AnswerType: schemas.AnswerMaturity,
		Fires:      maturityBelow(schemas.MaturityDefined),
	},
	{
		Flag: schemas.RiskFlag{
			Code:        FlagUnsandboxedTools,
			Label:       "Tool execution not sandboxed",
			Description: "Tools invoked by the system run without enforced isolation.",
		},
		QuestionID: QuestionToolSandboxing,
		AnswerType: schemas.AnswerMaturity,
		Fires:      maturityBelow(schemas.MaturityEnforced),
	},
	{
		Flag: schemas.RiskFlag{
			Code:        FlagMissingThreatModel,
			Label:       "Missing threat model",
			Description: "No threat model has been produced for the system.",
		},
		QuestionID: QuestionThreatModel,
		AnswerType: schemas.AnswerMaturity,
		Fires:      maturityBelow(schemas.MaturityAdHoc),
	},
}

func maturityBelow(level schemas.MaturityLevel) func(a *schemas.Answer) bool {
	return func(a *schemas.Answer) bool {
		if a == nil || a.Maturity == nil {
			return true
		}
		return a.Maturity.Rank() < level.Rank()
	}
}

// RiskFlags evaluates the rule table against a system assessment's answers.
// Other assessment types never raise flags. The result is never nil.
func RiskFlags(t schemas.AssessmentType, answers map[string]schemas.Answer) []schemas.RiskFlag {
	flags := []schemas.RiskFlag{}
	if t != schemas.AssessmentSystem {
		return flags
	}
	for _, rule := range RiskRules {
		var answer *schemas.Answer
		if a, ok := answers[rule.QuestionID]; ok {
			answer = &a
		}
		if rule.Fires(answer) {
			flags = append(flags, rule.Flag)
		}
	}
	return flags
}

func validateRiskBindings(index map[string]schemas.Question) error {
	for _, rule := range RiskRules {
		q, ok := index[rule.QuestionID]
		if !ok {
			return fmt.Errorf("risk rule %s is bound to missing question %q", rule.Flag.Code, rule.QuestionID)
		}
		if q.Type != rule.AnswerType {
			return fmt.Errorf("risk rule %s expects %s question %q, found %s", rule.Flag.Code, rule.AnswerType, q.ID, q.Type)
		}
	}
	return nil
}
