package model

import "encoding/json"

// Severity of a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is a single business-rule violation
type ValidationIssue struct {
	Field    string   `json:"field"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// ValidationResult is the ordered set of issues found in one validation pass
type ValidationResult struct {
	Issues []ValidationIssue `json:"issues"`
}

// IsValid reports whether no issue has error severity. Warnings never invalidate.
func (r ValidationResult) IsValid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// HasRule reports whether any issue was raised by the named rule
func (r ValidationResult) HasRule(rule string) bool {
	for _, issue := range r.Issues {
		if issue.Rule == rule {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity issues
func (r ValidationResult) Errors() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

func (r ValidationResult) MarshalJSON() ([]byte, error) {
	issues := r.Issues
	if issues == nil {
		issues = []ValidationIssue{}
	}
	return json.Marshal(struct {
		IsValid bool              `json:"is_valid"`
		Issues  []ValidationIssue `json:"issues"`
	}{r.IsValid(), issues})
}
