package model

import (
	"fmt"
	"strconv"
)

// TargetKind names the entity a comment or notification points at.
type TargetKind string

const (
	KindTestCase    TargetKind = "testcase"
	KindScriptIssue TargetKind = "scriptissue"
)

// Target is a tagged reference to a TestCase or a ScriptIssue.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   int64      `json:"id"`
}

func TestCaseTarget(id int64) *Target    { return &Target{Kind: KindTestCase, ID: id} }
func ScriptIssueTarget(id int64) *Target { return &Target{Kind: KindScriptIssue, ID: id} }

// ParseTargetKind validates a kind string from a request.
func ParseTargetKind(s string) (TargetKind, error) {
	switch k := TargetKind(s); k {
	case KindTestCase, KindScriptIssue:
		return k, nil
	}
	return "", fmt.Errorf("unknown target kind %q", s)
}

var targetRoutes = map[TargetKind]string{
	KindTestCase:    "core/testcase/",
	KindScriptIssue: "core/script/issue-detail/",
}

// Path renders the client route for the target. A zero ID yields the
// listing route.
func (t Target) Path() string {
	base, ok := targetRoutes[t.Kind]
	if !ok {
		return ""
	}
	if t.ID == 0 {
		return base
	}
	return base + strconv.FormatInt(t.ID, 10) + "/"
}
