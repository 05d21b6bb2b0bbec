package settings

import (
	"github.com/Roelanb/webpsync/internal/cachemover"
	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/htaccess"
)

// SaveReport is the outcome of SaveAll. The three writes succeed or fail
// independently.
type SaveReport struct {
	ConfigSaved     bool             `json:"config-saved"`
	OptionsSaved    bool             `json:"options-saved"`
	RulesNeedUpdate bool             `json:"rules-need-update"`
	RulesSynced     bool             `json:"rules-synced"`
	RuleOutcome     *htaccess.Result `json:"rule-outcome,omitempty"`
	ConfigError     string           `json:"config-error,omitempty"`
	OptionsError    string           `json:"options-error,omitempty"`
}

// Partial reports whether some but not all of the attempted writes succeeded.
func (r SaveReport) Partial() bool {
	ok, failed := 0, 0
	count := func(b bool) {
		if b {
			ok++
		} else {
			failed++
		}
	}
	count(r.ConfigSaved)
	count(r.OptionsSaved)
	if r.RuleOutcome != nil {
		count(r.RulesSynced)
		count(!r.RuleOutcome.PluginFailed)
		count(!r.RuleOutcome.UploadFailed)
	}
	return ok > 0 && failed > 0
}

// OK reports whether every attempted write succeeded.
func (r SaveReport) OK() bool {
	if !r.ConfigSaved || !r.OptionsSaved {
		return false
	}
	if r.RuleOutcome == nil {
		return true
	}
	return r.RulesSynced && !r.RuleOutcome.PluginFailed && !r.RuleOutcome.UploadFailed
}

type SubmitReport struct {
	Existed      bool                `json:"existed"`
	Save         SaveReport          `json:"save"`
	SchemeChange config.SchemeChange `json:"scheme-change,omitempty"`
	Relocation   *cachemover.Result  `json:"relocation,omitempty"`
}

type ReconcileReport struct {
	ConfigRestamped bool             `json:"config-restamped"`
	OptionsSaved    bool             `json:"options-saved"`
	RulesSynced     bool             `json:"rules-synced"`
	RuleOutcome     *htaccess.Result `json:"rule-outcome,omitempty"`
}

// Changed reports whether Reconcile wrote or attempted anything.
func (r ReconcileReport) Changed() bool {
	return r.ConfigRestamped || r.OptionsSaved || r.RuleOutcome != nil
}
