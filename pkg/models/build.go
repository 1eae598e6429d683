package models

import (
	"fmt"
	"strings"
	"time"
)

// BuildResult is the terminal outcome of a build as reported by the host
type BuildResult string

const (
	ResultSuccess  BuildResult = "SUCCESS"
	ResultUnstable BuildResult = "UNSTABLE"
	ResultFailure  BuildResult = "FAILURE"
	ResultAborted  BuildResult = "ABORTED"
	// ResultOther covers any terminal state the host reports that is not listed above
	ResultOther BuildResult = "OTHER"
)

// ParseBuildResult maps a host result string onto a BuildResult.
// Unknown values map to ResultOther.
func ParseBuildResult(s string) BuildResult {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ResultSuccess):
		return ResultSuccess
	case string(ResultUnstable):
		return ResultUnstable
	case string(ResultFailure):
		return ResultFailure
	case string(ResultAborted):
		return ResultAborted
	default:
		return ResultOther
	}
}

// Build represents a finished build record
type Build struct {
	ID          string         `json:"id" yaml:"id"`
	Job         string         `json:"job" yaml:"job"`
	Number      int            `json:"number" yaml:"number"`
	Result      BuildResult    `json:"result" yaml:"result"`
	RetryCount  int            `json:"retry_count" yaml:"retry_count"`
	ParentID    string         `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Combination Combination    `json:"combination,omitempty" yaml:"combination,omitempty"`
	LogPath     string         `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	Members     []MemberResult `json:"members,omitempty" yaml:"members,omitempty"`
	FinishedAt  time.Time      `json:"finished_at" yaml:"finished_at"`
}

// IsFanoutMember reports whether the build is one combination of a fan-out
func (b Build) IsFanoutMember() bool {
	return b.ParentID != ""
}

// IsFanoutParent reports whether the build aggregates fan-out members
func (b Build) IsFanoutParent() bool {
	return len(b.Members) > 0
}

// MarkerKey returns the record a retry marker for this build is attached to
func (b Build) MarkerKey() string {
	if b.IsFanoutMember() {
		return b.ParentID
	}
	return b.ID
}

// Normalize maps the host reported results of the build and of every fan-out member onto
// the known BuildResult values
func (b *Build) Normalize() {
	b.Result = ParseBuildResult(string(b.Result))
	for i := range b.Members {
		b.Members[i].Result = ParseBuildResult(string(b.Members[i].Result))
	}
}

// FanoutRun returns the finished fan-out view of a parent build
func (b Build) FanoutRun() FanoutRun {
	return FanoutRun{ParentID: b.ID, Members: b.Members}
}

func (b Build) String() string {
	if b.IsFanoutMember() {
		return fmt.Sprintf("%s#%d %s", b.Job, b.Number, b.Combination)
	}
	return fmt.Sprintf("%s#%d", b.Job, b.Number)
}
