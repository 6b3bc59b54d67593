package model

import "time"

// Status is the lifecycle state of a CompanyRecord.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusDone       Status = "done"
	StatusReview     Status = "review"
	StatusNoHomepage Status = "no_homepage"
	StatusError      Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusReview, StatusNoHomepage, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends a processing attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusReview, StatusNoHomepage, StatusError:
		return true
	}
	return false
}

// Error codes recorded alongside terminal statuses.
const (
	ErrorCodeTimeout      = "timeout"
	ErrorCodeFetch        = "fetch"
	ErrorCodeAI           = "ai"
	ErrorCodeStore        = "store"
	ErrorCodePanic        = "panic"
	ErrorCodeInternal     = "internal"
	ErrorCodeShutdown     = "shutdown"
	ReviewLockMismatch    = "lock_mismatch"
	ReviewPrefMismatch    = "pref_mismatch"
	ReviewAIEndorsed      = "ai_endorsed"
	ReviewIncomplete      = "incomplete"
	ReviewLowConfidence   = "low_confidence"
	ReviewTimeout         = "timeout"
	ReviewProvisionalOnly = "provisional_only"
)

// CompanyRecord is the only durable entity. Pipeline phases mutate a working
// copy; the store persists it in one conditional write.
type CompanyRecord struct {
	ID           int64  `json:"id"`
	CompanyName  string `json:"company_name"`
	InputAddress string `json:"input_address"`

	Homepage     string `json:"homepage"`
	Phone        string `json:"phone"`
	FoundAddress string `json:"found_address"`
	RepName      string `json:"rep_name"`
	Description  string `json:"description"`
	Listing      string `json:"listing"`
	Capital      string `json:"capital"`
	Revenue      string `json:"revenue"`
	Profit       string `json:"profit"`
	FiscalMonth  string `json:"fiscal_month"`
	FoundedYear  string `json:"founded_year"`

	Provenance map[Field]FieldProvenance `json:"provenance,omitempty"`

	HomepageScore       int    `json:"homepage_score"`
	ProvisionalHomepage string `json:"provisional_homepage"`
	ReviewReason        string `json:"review_reason"`

	Status            Status     `json:"status"`
	ErrorCode         string     `json:"error_code"`
	ClaimedBy         string     `json:"claimed_by"`
	ClaimedAt         *time.Time `json:"claimed_at,omitempty"`
	LastCheckedAt     *time.Time `json:"last_checked_at,omitempty"`
	LockMismatchCount int        `json:"lock_mismatch_count"`
	Attempts          int        `json:"attempts"`
}

// Get returns the value of a result field.
func (r *CompanyRecord) Get(f Field) string {
	if p := r.fieldPtr(f); p != nil {
		return *p
	}
	return ""
}

// Set assigns a result field. Unknown fields are ignored.
func (r *CompanyRecord) Set(f Field, v string) {
	if p := r.fieldPtr(f); p != nil {
		*p = v
	}
}

func (r *CompanyRecord) fieldPtr(f Field) *string {
	switch f {
	case FieldPhone:
		return &r.Phone
	case FieldAddress:
		return &r.FoundAddress
	case FieldRepName:
		return &r.RepName
	case FieldDescription:
		return &r.Description
	case FieldListing:
		return &r.Listing
	case FieldCapital:
		return &r.Capital
	case FieldRevenue:
		return &r.Revenue
	case FieldProfit:
		return &r.Profit
	case FieldFiscalMonth:
		return &r.FiscalMonth
	case FieldFoundedYear:
		return &r.FoundedYear
	}
	return nil
}

// Clone returns a deep copy suitable as a working copy.
func (r *CompanyRecord) Clone() *CompanyRecord {
	c := *r
	if r.Provenance != nil {
		c.Provenance = make(map[Field]FieldProvenance, len(r.Provenance))
		for k, v := range r.Provenance {
			c.Provenance[k] = v
		}
	}
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		c.ClaimedAt = &t
	}
	if r.LastCheckedAt != nil {
		t := *r.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return &c
}
