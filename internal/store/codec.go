package store

import (
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

// candidateDocs holds the candidate fields persisted as JSON documents.
type candidateDocs struct {
	experience     []byte
	education      []byte
	certifications []byte
	companyInfo    []byte
	socialProfiles []byte
	skills         []byte
	aiReasons      []byte
}

func encodeCandidateDocs(c *model.Candidate) (candidateDocs, error) {
	var d candidateDocs
	var err error
	for _, f := range []struct {
		dst *[]byte
		v   any
	}{
		{&d.experience, nonNil(c.Experience)},
		{&d.education, nonNil(c.Education)},
		{&d.certifications, nonNil(c.Certifications)},
		{&d.companyInfo, c.CompanyInfo},
		{&d.socialProfiles, c.SocialProfiles},
		{&d.skills, nonNil(c.Skills)},
		{&d.aiReasons, nonNil(c.AIScoreReasons)},
	} {
		if *f.dst, err = json.Marshal(f.v); err != nil {
			return d, eris.Wrap(err, "store: marshal candidate")
		}
	}
	return d, nil
}

func (d candidateDocs) decode(c *model.Candidate) error {
	for _, f := range []struct {
		src []byte
		dst any
	}{
		{d.experience, &c.Experience},
		{d.education, &c.Education},
		{d.certifications, &c.Certifications},
		{d.companyInfo, &c.CompanyInfo},
		{d.socialProfiles, &c.SocialProfiles},
		{d.skills, &c.Skills},
		{d.aiReasons, &c.AIScoreReasons},
	} {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return eris.Wrap(err, "store: unmarshal candidate")
		}
	}
	return nil
}

// nonNil keeps empty collections as [] rather than null in stored JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func encodeHeaders(h map[string]string) ([]byte, error) {
	if h == nil {
		h = map[string]string{}
	}
	b, err := json.Marshal(h)
	return b, eris.Wrap(err, "store: marshal headers")
}

func decodeHeaders(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var h map[string]string
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal headers")
	}
	if len(h) == 0 {
		return nil, nil
	}
	return h, nil
}

func taskTypeStrings(types []model.TaskType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func sendStatusStrings(statuses []model.SendStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func sortEmails(items []model.EmailQueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].NextAttemptAt.Before(items[j].NextAttemptAt)
	})
}
