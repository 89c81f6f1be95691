package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// MergeStrategy governs how an incoming record combines with a matched one.
type MergeStrategy string

const (
	KeepExisting MergeStrategy = "keep_existing"
	PreferNew    MergeStrategy = "prefer_new"
	MergeBest    MergeStrategy = "merge_best"
)

// ParseMergeStrategy parses a strategy name. Empty input yields MergeBest.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MergeBest:
		return MergeBest, nil
	case KeepExisting:
		return KeepExisting, nil
	case PreferNew:
		return PreferNew, nil
	default:
		return "", eris.Errorf("model: unknown merge strategy %q", s)
	}
}

// UpsertAction is the outcome of a deduplicating upsert.
type UpsertAction string

const (
	ActionInsert UpsertAction = "insert"
	ActionUpdate UpsertAction = "update"
	ActionSkip   UpsertAction = "skip"
)

// UpsertResult reports what a deduplicating upsert did.
type UpsertResult struct {
	Action      UpsertAction `json:"action"`
	CandidateID string       `json:"candidate_id"`
	Reason      string       `json:"reason"`
}
