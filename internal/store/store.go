package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/shard"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrLockLost is returned when a guarded write finds the claim held by
	// someone else. The row has been routed to review.
	ErrLockLost = errors.New("store: lock lost")
)

// Claim orders.
const (
	OrderIDAsc  = "id_asc"
	OrderIDDesc = "id_desc"
	OrderRandom = "random"
)

// ClaimRequest describes one lease attempt.
type ClaimRequest struct {
	WorkerID string
	Range    shard.Range
	// Statuses are tried in order; the first status with an eligible row wins.
	Statuses []model.Status
	Order    string
}

// URLFlag caches an official/not-official verdict for a URL or host.
type URLFlag struct {
	Value       string    `json:"normalized_value"`
	Scope       string    `json:"scope"`
	IsOfficial  bool      `json:"is_official"`
	Host        string    `json:"host"`
	JudgeSource string    `json:"judge_source"`
	Reason      string    `json:"reason"`
	Confidence  float64   `json:"confidence"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Flag scopes and sources.
const (
	ScopeURL   = "url"
	ScopeHost  = "host"
	SourceRule = "rule"
	SourceAI   = "ai"
)

// Store is the record store shared by all worker processes.
type Store interface {
	// Claims
	ClaimNext(ctx context.Context, req ClaimRequest) (*model.CompanyRecord, error)
	ReclaimStale(ctx context.Context, ttl time.Duration, r shard.Range) (int64, error)

	// Guarded writes; the only writers of terminal state.
	Commit(ctx context.Context, workerID string, rec *model.CompanyRecord) error
	Release(ctx context.Context, workerID string, id int64, status model.Status, errorCode string) error

	// Reads
	Get(ctx context.Context, id int64) (*model.CompanyRecord, error)
	IDBounds(ctx context.Context) (int64, int64, error)
	CountByStatus(ctx context.Context, r shard.Range) (map[model.Status]int, error)

	// Seeding
	Insert(ctx context.Context, rec *model.CompanyRecord) (int64, error)

	// URL flags
	GetURLFlags(ctx context.Context, values []string) (map[string]URLFlag, error)
	UpsertURLFlag(ctx context.Context, flag URLFlag) error
	ClearAIFlags(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ClaimStatuses builds the claim order: pending first, then the retry statuses.
func ClaimStatuses(retry []string) []model.Status {
	out := []model.Status{model.StatusPending}
	for _, s := range retry {
		st := model.Status(s)
		if st == model.StatusPending || st == model.StatusRunning || !st.Valid() {
			continue
		}
		out = append(out, st)
	}
	return out
}

func orderClause(order string) string {
	switch order {
	case OrderIDDesc:
		return "ORDER BY id DESC"
	case OrderRandom:
		return "ORDER BY random()"
	default:
		return "ORDER BY id ASC"
	}
}

// recordColumns is shared by every query that returns a full record.
const recordColumns = `id, company_name, input_address, homepage, phone, found_address, rep_name,
	description, listing, capital, revenue, profit, fiscal_month, founded_year,
	provenance, homepage_score, provisional_homepage, review_reason, status, error_code,
	claimed_by, claimed_at, last_checked_at, lock_mismatch_count, attempts`

func encodeProvenance(p map[model.Field]model.FieldProvenance) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal provenance")
	}
	return string(b), nil
}

func decodeProvenance(raw []byte) (map[model.Field]model.FieldProvenance, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p map[model.Field]model.FieldProvenance
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal provenance")
	}
	if len(p) == 0 {
		return nil, nil
	}
	return p, nil
}
