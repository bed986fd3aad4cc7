package models

// Advice is the structured output of the optional LLM annotation pass.
type Advice struct {
	TodayActions  []AdviceAction `json:"today_actions"`
	Monitoring    []string       `json:"monitoring"`
	RootCause     []string       `json:"root_cause"`
	Logging       []string       `json:"logging"`
	PerIssueNotes []IssueNote    `json:"per_issue_notes"`
}

// AdviceAction is one concrete action the annotator suggests for today.
type AdviceAction struct {
	Title      string `json:"title"`
	Why        string `json:"why"`
	OwnerRole  string `json:"owner_role"`
	Suggestion string `json:"suggestion"`
}

// IssueNote is a short per-issue comment keyed by display title.
type IssueNote struct {
	IssueTitle string `json:"issue_title"`
	Note       string `json:"note"`
}
