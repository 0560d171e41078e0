package store

import (
	"context"
	"database/sql"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/model"
)

// UpsertAgentNode writes or refreshes a topology node within tx. The edge to
// ParentID is sticky: once set by a SubagentStart, later events for the same
// agent never clear it (spec.md §4.3 topology invariants).
func (s *Store) UpsertAgentNode(tx *sql.Tx, n *model.AgentNode) error {
	_, err := tx.Exec(
		`INSERT INTO agent_nodes (agent_id, parent_id, project_name, model_name, status, task_context)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			parent_id = CASE WHEN excluded.parent_id != '' THEN excluded.parent_id ELSE agent_nodes.parent_id END,
			project_name = excluded.project_name,
			model_name = excluded.model_name,
			status = excluded.status,
			task_context = excluded.task_context`,
		n.AgentID, n.ParentID, n.ProjectName, n.ModelName, n.Status, n.TaskContext,
	)
	if err != nil {
		return apperr.StoreIOError("upsert agent node", err)
	}
	return nil
}

// ListAgentNodes returns every topology node for a project, used to build a
// Topology forest (spec.md §6 GET /api/topology).
func (s *Store) ListAgentNodes(ctx context.Context, projectName string) ([]model.AgentNode, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT agent_id, parent_id, project_name, model_name, status, task_context
		 FROM agent_nodes WHERE project_name = ?`, projectName)
	if err != nil {
		return nil, apperr.StoreIOError("list agent nodes", err)
	}
	defer rows.Close()

	var out []model.AgentNode
	for rows.Next() {
		var n model.AgentNode
		if err := rows.Scan(&n.AgentID, &n.ParentID, &n.ProjectName, &n.ModelName, &n.Status, &n.TaskContext); err != nil {
			return nil, apperr.StoreIOError("scan agent node", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
