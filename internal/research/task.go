package research

// URLReport records what one URL contributed to a task. A URL is either
// interrogated (zero or more answers) or skipped with a reason; a skip is a
// recorded outcome, not an error.
type URLReport struct {
	URL        string   `json:"url"`
	Answers    []string `json:"answers,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"`
	SkipReason string   `json:"skip_reason,omitempty"`
}

// Report is the full outcome of one research task. FinalAnswer may be empty
// when no URL contributed; that is a completed task, not a failed one.
type Report struct {
	Question    string      `json:"question"`
	FinalAnswer string      `json:"final_answer"`
	Queries     []string    `json:"queries,omitempty"`
	URLs        []string    `json:"urls,omitempty"`
	URLReports  []URLReport `json:"url_reports,omitempty"`
}

// Contributors returns the reports that carry at least one answer, in
// discovery order. These are the fold inputs.
func (r Report) Contributors() []URLReport {
	var out []URLReport
	for _, ur := range r.URLReports {
		if len(ur.Answers) > 0 {
			out = append(out, ur)
		}
	}
	return out
}
