package model

// Candidate is a discovered URL not yet confirmed official. It lives only for
// the processing of one record.
type Candidate struct {
	URL        string     `json:"url"`
	Host       string     `json:"host"`
	Query      string     `json:"query"`
	QueryIndex int        `json:"query_index"`
	Rank       int        `json:"rank"`
	Prior      int        `json:"prior"`
	Tags       []PageType `json:"tags,omitempty"`
	Page       *Page      `json:"-"`
}

// Decision is the scorer's verdict on one candidate.
type Decision string

const (
	DecisionRejected         Decision = "rejected"
	DecisionOfficialEligible Decision = "official_eligible"
	DecisionAmbiguous        Decision = "ambiguous"
	// DecisionAIEndorsed is an Ambiguous candidate the AI judged official.
	// It routes the record to review and is never promoted to Official.
	DecisionAIEndorsed Decision = "ai_endorsed"
)

// ScoreResult holds the features and decision for one candidate.
type ScoreResult struct {
	Candidate    *Candidate `json:"-"`
	URL          string     `json:"url"`
	DomainScore  int        `json:"domain_score"`
	AddressMatch bool       `json:"address_match"`
	NamePresence bool       `json:"name_presence"`
	Decision     Decision   `json:"decision"`
	Rationale    []string   `json:"rationale,omitempty"`
	// Order is the first-seen position used as the final tie-break.
	Order int `json:"order"`
}
