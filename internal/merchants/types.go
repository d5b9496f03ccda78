package merchants

// State is derived from the upstream websiteClaimed flag.
type State string

const (
	Active   State = "Active"
	Inactive State = "Inactive"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// AccountIssue is a problem affecting the merchant account as a whole.
type AccountIssue struct {
	Title         string `json:"title"`
	Detail        string `json:"detail"`
	Severity      string `json:"severity,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// Summary is the title, or the detail when the upstream omitted a title.
func (a AccountIssue) Summary() string {
	if a.Title != "" {
		return a.Title
	}
	return a.Detail
}

// ItemIssue is a problem affecting a subset of a merchant's product listings.
type ItemIssue struct {
	Code          string   `json:"code"`
	Description   string   `json:"description"`
	Detail        string   `json:"detail,omitempty"`
	Severity      Severity `json:"severity"`
	AffectedItems int      `json:"affectedItemCount"`
	Documentation string   `json:"documentationLink,omitempty"`
}

// Status is the flat display record for one merchant.
type Status struct {
	Name          string         `json:"name"`
	AccountID     string         `json:"accountId"`
	Country       string         `json:"country,omitempty"`
	State         State          `json:"status"`
	Approved      int            `json:"approvedCount"`
	Disapproved   int            `json:"disapprovedCount"`
	Pending       int            `json:"pendingCount"`
	Expiring      int            `json:"expiringCount"`
	AccountIssues []AccountIssue `json:"accountIssues"`
	ItemIssues    []ItemIssue    `json:"itemIssues"`
}

func (s Status) Total() int {
	return s.Approved + s.Disapproved + s.Pending
}

// ErrorCount is the number of item issues that disapprove listings.
func (s Status) ErrorCount() int {
	n := 0
	for _, issue := range s.ItemIssues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}
