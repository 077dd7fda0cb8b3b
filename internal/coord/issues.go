package coord

import (
	"context"

	"github.com/cmtonkinson/worksync/internal/issue"
)

// CreateIssue adds an issue document.
func (c *Coordinator) CreateIssue(ctx context.Context, input issue.CreateInput) (issue.Issue, error) {
	created, err := c.issues.Create(ctx, input)
	if err != nil {
		return issue.Issue{}, err
	}
	_ = c.audit.LogIssueStatus(created.ID, c.session, "none", string(created.Status))
	for _, dep := range created.DependsOn {
		_ = c.audit.LogIssueDependency(created.ID, c.session, "add", dep)
	}
	return created, nil
}

// SetStatus changes an issue's status.
func (c *Coordinator) SetStatus(ctx context.Context, id string, to issue.Status) (issue.Issue, error) {
	updated, from, err := c.issues.SetStatus(ctx, id, to)
	if err != nil {
		return issue.Issue{}, err
	}
	if from != updated.Status {
		_ = c.audit.LogIssueStatus(id, c.session, string(from), string(updated.Status))
	}
	return updated, nil
}

// AddDependency records that id depends on dep, rejecting cycles.
func (c *Coordinator) AddDependency(ctx context.Context, id, dep string) error {
	if err := c.issues.AddDependency(ctx, id, dep); err != nil {
		return err
	}
	_ = c.audit.LogIssueDependency(id, c.session, "add", dep)
	return nil
}

// RemoveDependency drops the edge id -> dep.
func (c *Coordinator) RemoveDependency(ctx context.Context, id, dep string) error {
	if err := c.issues.RemoveDependency(ctx, id, dep); err != nil {
		return err
	}
	_ = c.audit.LogIssueDependency(id, c.session, "remove", dep)
	return nil
}
