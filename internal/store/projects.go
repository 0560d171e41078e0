package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// UpsertProject writes the full current state of a project within tx
// (spec.md §4.1, §4.3).
func (s *Store) UpsertProject(tx *sql.Tx, p *model.Project) error {
	devServers, err := json.Marshal(p.DevServers)
	if err != nil {
		return apperr.Malformed("marshal dev servers", err)
	}
	deploymentStatus := p.DeploymentStatus
	if deploymentStatus == "" {
		deploymentStatus = "{}"
	}
	githubStatus := p.GithubStatus
	if githubStatus == "" {
		githubStatus = "{}"
	}
	healthComponents := p.HealthComponents
	if healthComponents == "" {
		healthComponents = "{}"
	}

	_, err = tx.Exec(
		`INSERT INTO projects (
			name, current_branch, active_sessions, last_activity, test_status, test_summary,
			dev_servers, deployment_status, github_status, health, health_components, health_trend
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			current_branch = excluded.current_branch,
			active_sessions = excluded.active_sessions,
			last_activity = excluded.last_activity,
			test_status = excluded.test_status,
			test_summary = excluded.test_summary,
			dev_servers = excluded.dev_servers,
			deployment_status = excluded.deployment_status,
			github_status = excluded.github_status,
			health = excluded.health,
			health_components = excluded.health_components,
			health_trend = excluded.health_trend`,
		p.Name, p.CurrentBranch, p.ActiveSessions, p.LastActivity, string(p.TestStatus), p.TestSummary,
		string(devServers), deploymentStatus, githubStatus, p.Health, healthComponents, p.HealthTrend,
	)
	if err != nil {
		return apperr.StoreIOError("upsert project", err)
	}
	return nil
}

// GetProject reads a project by name within tx.
func (s *Store) GetProject(tx *sql.Tx, name string) (*model.Project, error) {
	row := tx.QueryRow(
		`SELECT name, current_branch, active_sessions, last_activity, test_status, test_summary,
			dev_servers, deployment_status, github_status, health, health_components, health_trend
		 FROM projects WHERE name = ?`, name,
	)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*model.Project, error) {
	var p model.Project
	var testStatus, devServers string
	err := row.Scan(
		&p.Name, &p.CurrentBranch, &p.ActiveSessions, &p.LastActivity, &testStatus, &p.TestSummary,
		&devServers, &p.DeploymentStatus, &p.GithubStatus, &p.Health, &p.HealthComponents, &p.HealthTrend,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreIOError("scan project", err)
	}
	p.TestStatus = model.TestStatus(testStatus)
	if devServers != "" {
		_ = json.Unmarshal([]byte(devServers), &p.DevServers)
	}
	return &p, nil
}

// ListProjects returns all known projects ordered by most recent activity
// (spec.md §6 GET /api/projects).
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT name, current_branch, active_sessions, last_activity, test_status, test_summary,
			dev_servers, deployment_status, github_status, health, health_components, health_trend
		 FROM projects ORDER BY last_activity DESC`)
	if err != nil {
		return nil, apperr.StoreIOError("list projects", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var p model.Project
		var testStatus, devServers string
		if err := rows.Scan(
			&p.Name, &p.CurrentBranch, &p.ActiveSessions, &p.LastActivity, &testStatus, &p.TestSummary,
			&devServers, &p.DeploymentStatus, &p.GithubStatus, &p.Health, &p.HealthComponents, &p.HealthTrend,
		); err != nil {
			return nil, apperr.StoreIOError("scan project", err)
		}
		p.TestStatus = model.TestStatus(testStatus)
		if devServers != "" {
			_ = json.Unmarshal([]byte(devServers), &p.DevServers)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProjectByName is the non-transactional counterpart of GetProject, for
// read-path handlers (spec.md §6 GET /api/projects/:name).
func (s *Store) GetProjectByName(ctx context.Context, name string) (*model.Project, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT name, current_branch, active_sessions, last_activity, test_status, test_summary,
			dev_servers, deployment_status, github_status, health, health_components, health_trend
		 FROM projects WHERE name = ?`, name,
	)
	var p model.Project
	var testStatus, devServers string
	err := row.Scan(
		&p.Name, &p.CurrentBranch, &p.ActiveSessions, &p.LastActivity, &testStatus, &p.TestSummary,
		&devServers, &p.DeploymentStatus, &p.GithubStatus, &p.Health, &p.HealthComponents, &p.HealthTrend,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project not found")
	}
	if err != nil {
		return nil, apperr.StoreIOError("get project", err)
	}
	p.TestStatus = model.TestStatus(testStatus)
	if devServers != "" {
		_ = json.Unmarshal([]byte(devServers), &p.DevServers)
	}
	return &p, nil
}
