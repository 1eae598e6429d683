package marker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/speedrun-hq/rerunner/pkg/policy"
)

var ErrEmptyParentID = errors.New("empty parent build ID")

// Outcome reports what Attach did
type Outcome int

const (
	Attached Outcome = iota
	AlreadyPresent
)

func (o Outcome) String() string {
	if o == Attached {
		return "attached"
	}
	return "already_present"
}

// Marker is the retry policy attached to a finished build record
type Marker struct {
	ID         string        `json:"id"`
	ParentID   string        `json:"parent_id"`
	Job        string        `json:"job"`
	Policy     policy.Config `json:"policy"`
	AttachedAt time.Time     `json:"attached_at"`
}

// New creates a marker for the build record parentID
func New(parentID, job string, cfg policy.Config) Marker {
	return Marker{
		ID:         uuid.New().String(),
		ParentID:   parentID,
		Job:        job,
		Policy:     cfg,
		AttachedAt: time.Now().UTC(),
	}
}

// Decider rebuilds the policy carried by the marker
func (m Marker) Decider() (*policy.Policy, error) {
	return policy.New(m.Policy)
}

// Store attaches at most one marker per build record.
// Attach is an atomic check-and-insert: concurrent callers for the same parent see exactly
// one Attached outcome, every other caller sees AlreadyPresent.
type Store interface {
	Attach(ctx context.Context, m Marker) (Outcome, error)
	Get(ctx context.Context, parentID string) (Marker, bool, error)
	Detach(ctx context.Context, parentID string) error
	Count(ctx context.Context) (int, error)
}
