package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskType_Priority(t *testing.T) {
	assert.Equal(t, 1, TaskFindEmail.Priority())
	assert.Equal(t, 2, TaskVerifyEmail.Priority())
	assert.Equal(t, 3, TaskFindPhone.Priority())
	assert.Equal(t, 4, TaskVerifyPhone.Priority())
	assert.Equal(t, 5, TaskLinkedInProfile.Priority())
	assert.Equal(t, 6, TaskCompanyInfo.Priority())
	assert.Equal(t, 7, TaskAIScore.Priority())
	assert.False(t, TaskType("fax-lookup").Valid())
}

func TestNewTask(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &Candidate{ID: "c1", WorkspaceID: "w1"}
	task := NewTask(c, TaskFindPhone, now)

	assert.Equal(t, TaskPending, task.Status)
	assert.Equal(t, 3, task.Priority)
	assert.Equal(t, DefaultMaxAttempts, task.MaxAttempts)
	assert.Equal(t, now, task.NextAttemptAt)
	assert.Equal(t, "w1", task.WorkspaceID)
}

func TestParseMergeStrategy(t *testing.T) {
	s, err := ParseMergeStrategy("")
	require.NoError(t, err)
	assert.Equal(t, MergeBest, s)

	s, err = ParseMergeStrategy("PREFER_NEW")
	require.NoError(t, err)
	assert.Equal(t, PreferNew, s)

	_, err = ParseMergeStrategy("overwrite")
	require.Error(t, err)
}

func TestMonthHelpers(t *testing.T) {
	ts := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-12", MonthKey(ts))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextMonthStart(ts))
}

func TestCandidate_FullName(t *testing.T) {
	assert.Equal(t, "Jane Doe", (&Candidate{FirstName: "Jane", LastName: "Doe"}).FullName())
	assert.Equal(t, "Doe", (&Candidate{LastName: "Doe"}).FullName())
}

func TestCandidate_Completeness(t *testing.T) {
	c := &Candidate{}
	assert.Equal(t, 0, c.Completeness())

	c.Email = "jane@x.com"
	c.Skills = []string{"go"}
	c.Location = "NYC"
	assert.Equal(t, 30, c.Completeness())

	c.Phone, c.LinkedInURL, c.CurrentTitle, c.CurrentCompany = "1", "l", "t", "co"
	c.Headline, c.About = "h", "a"
	c.Experience = []Experience{{Title: "Eng"}}
	assert.Equal(t, 100, c.Completeness())
}
