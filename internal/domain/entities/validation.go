package entities

// Severity of a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is a single finding reported against a recipe field
type ValidationIssue struct {
	Field    string
	Message  string
	Severity Severity
}

// ValidationReport collects the issues found in one recipe
type ValidationReport struct {
	Recipe *Recipe
	Issues []ValidationIssue
}

// Valid reports whether the recipe has no error-severity issues
func (r *ValidationReport) Valid() bool {
	return len(r.Errors()) == 0
}

// Errors returns the error-severity issues
func (r *ValidationReport) Errors() []ValidationIssue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity issues
func (r *ValidationReport) Warnings() []ValidationIssue {
	return r.filter(SeverityWarning)
}

// AddError records an error-severity issue
func (r *ValidationReport) AddError(field, msg string) {
	r.Issues = append(r.Issues, ValidationIssue{Field: field, Message: msg, Severity: SeverityError})
}

// AddWarning records a warning-severity issue
func (r *ValidationReport) AddWarning(field, msg string) {
	r.Issues = append(r.Issues, ValidationIssue{Field: field, Message: msg, Severity: SeverityWarning})
}

// HasIssue reports whether any issue was recorded for field
func (r *ValidationReport) HasIssue(field string) bool {
	for _, issue := range r.Issues {
		if issue.Field == field {
			return true
		}
	}
	return false
}

func (r *ValidationReport) filter(sev Severity) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			out = append(out, issue)
		}
	}
	return out
}
