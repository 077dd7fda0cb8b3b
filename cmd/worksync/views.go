package main

import (
	"time"

	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/lock"
	"github.com/cmtonkinson/worksync/internal/protect"
	"github.com/cmtonkinson/worksync/internal/resolver"
)

// JSON shapes for envelope data.

type issueView struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	DependsOn []string  `json:"depends_on"`
	Blocks    []string  `json:"blocks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Dir       string    `json:"dir"`
	HasPlan   bool      `json:"has_plan"`
	Body      string    `json:"body,omitempty"`
}

func viewIssue(iss issue.Issue, withBody bool) issueView {
	v := issueView{
		ID:        iss.ID,
		Version:   iss.Version,
		Name:      iss.Name,
		Title:     iss.Title,
		Status:    string(iss.Status),
		DependsOn: nonNil(iss.DependsOn),
		Blocks:    nonNil(iss.Blocks),
		CreatedAt: iss.CreatedAt,
		UpdatedAt: iss.UpdatedAt,
		Dir:       iss.Dir,
		HasPlan:   iss.HasPlan,
	}
	if withBody {
		v.Body = iss.Body
	}
	return v
}

type lockView struct {
	Issue       string    `json:"issue"`
	Held        bool      `json:"held"`
	Stale       bool      `json:"stale"`
	Session     string    `json:"session,omitempty"`
	AgeSeconds  int64     `json:"age_seconds"`
	Worktree    string    `json:"worktree,omitempty"`
	AcquiredAt  time.Time `json:"acquired_at,omitzero"`
	HeartbeatAt time.Time `json:"heartbeat_at,omitzero"`
	PID         int       `json:"pid,omitempty"`
	Hostname    string    `json:"hostname,omitempty"`
	Owner       string    `json:"owner_process,omitempty"`
}

func viewLock(st lock.Status) lockView {
	return lockView{
		Issue:       st.Issue,
		Held:        st.Held,
		Stale:       st.Stale,
		Session:     st.Session,
		AgeSeconds:  int64(st.Age.Seconds()),
		Worktree:    st.Worktree,
		AcquiredAt:  st.AcquiredAt,
		HeartbeatAt: st.HeartbeatAt,
		PID:         st.PID,
		Hostname:    st.Hostname,
		Owner:       string(st.Owner),
	}
}

type outcomeView struct {
	Kind    string              `json:"kind"`
	Issue   *issueView          `json:"issue,omitempty"`
	Resumed bool                `json:"resumed,omitempty"`
	Waiting map[string][]string `json:"waiting,omitempty"`
	Claimed map[string]string   `json:"claimed,omitempty"`
	Parked  []string            `json:"parked,omitempty"`
	Cycle   []string            `json:"cycle,omitempty"`
}

func viewOutcome(out resolver.Outcome) outcomeView {
	v := outcomeView{
		Kind:    string(out.Kind),
		Resumed: out.Resumed,
		Waiting: out.Waiting,
		Claimed: out.Claimed,
		Parked:  out.Parked,
		Cycle:   out.Cycle,
	}
	if out.Issue != nil {
		iv := viewIssue(*out.Issue, false)
		v.Issue = &iv
	}
	return v
}

type refusalView struct {
	Target    string `json:"target"`
	Protected string `json:"protected"`
	Reason    string `json:"reason"`
	Cwd       string `json:"cwd,omitempty"`
}

func viewRefusal(err *protect.ProtectedError) *refusalView {
	if err == nil {
		return nil
	}
	return &refusalView{Target: err.Target, Protected: err.Protected, Reason: err.Reason, Cwd: err.Cwd}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
