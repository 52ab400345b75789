package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/komodo-run/core/internal/domain/alert"
	"github.com/komodo-run/core/internal/domain/permission"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/server"
	"github.com/komodo-run/core/internal/domain/tag"
	"github.com/komodo-run/core/internal/domain/update"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/domain/variable"
)

// pgxRows is a local alias so query-branching helpers can share a single
// declared variable across an if/else without repeating the package path.
type pgxRows = pgx.Rows

// --- Resource description ---

func (s *Store) SetResourceDescription(ctx context.Context, target resource.TargetRef, description string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resources SET description = $3, updated_at = $4
		WHERE kind = $1 AND id = $2`,
		target.Kind, target.Id, description, time.Now().UnixMilli())
	return execExpectOne(tag, err, "set %s %s description", target.Kind, target.Id)
}

// --- Server stats history ---

func (s *Store) InsertServerStats(ctx context.Context, snap server.StatsSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO server_stats (server_id, ts, cpu_perc, mem_used_gb, mem_total_gb, disk_used_gb, disk_total_gb)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (server_id, ts) DO NOTHING`,
		snap.ServerId, snap.Ts, snap.CpuPerc, snap.MemUsedGb, snap.MemTotalGb, snap.DiskUsedGb, snap.DiskTotalGb,
	)
	if err != nil {
		return fmt.Errorf("insert server stats: %w", err)
	}
	return nil
}

func (s *Store) ListServerStats(ctx context.Context, serverID string, limit int) ([]server.StatsSnapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT server_id, ts, cpu_perc, mem_used_gb, mem_total_gb, disk_used_gb, disk_total_gb
		FROM server_stats WHERE server_id = $1
		ORDER BY ts DESC LIMIT $2`,
		serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("list server stats: %w", err)
	}
	defer rows.Close()

	var out []server.StatsSnapshot
	for rows.Next() {
		var snap server.StatsSnapshot
		if err := rows.Scan(&snap.ServerId, &snap.Ts, &snap.CpuPerc, &snap.MemUsedGb, &snap.MemTotalGb, &snap.DiskUsedGb, &snap.DiskTotalGb); err != nil {
			return nil, fmt.Errorf("scan server stats: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) PruneServerStats(ctx context.Context, olderThanTs int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM server_stats WHERE ts < $1`, olderThanTs)
	if err != nil {
		return 0, fmt.Errorf("prune server stats: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Updates ---

func scanUpdate(row scannable) (update.Update, error) {
	var u update.Update
	var logsJSON []byte
	err := row.Scan(&u.Id, &u.Operation, &u.Target.Kind, &u.Target.Id, &u.StartTs, &u.EndTs, &u.Status, &u.Success, &u.Operator, &logsJSON, &u.Version, &u.CommitHash, &u.OtherData)
	if err != nil {
		return u, err
	}
	if len(logsJSON) > 0 {
		if err := json.Unmarshal(logsJSON, &u.Logs); err != nil {
			return u, fmt.Errorf("unmarshal update logs: %w", err)
		}
	}
	return u, nil
}

const updateColumns = `id, operation, target_kind, target_id, start_ts, end_ts, status, success, operator, logs, version, commit_hash, other_data`

func (s *Store) CreateUpdate(ctx context.Context, u *update.Update) error {
	if u.Id == "" {
		u.Id = uuid.NewString()
	}
	logsJSON, err := json.Marshal(orEmpty(u.Logs))
	if err != nil {
		return fmt.Errorf("marshal update logs: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO updates (`+updateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.Id, u.Operation, u.Target.Kind, u.Target.Id, u.StartTs, u.EndTs, u.Status, u.Success, u.Operator, logsJSON, u.Version, u.CommitHash, u.OtherData,
	)
	if err != nil {
		return fmt.Errorf("create update: %w", err)
	}
	return nil
}

func (s *Store) AppendUpdateLog(ctx context.Context, id string, log update.Log) error {
	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal update log: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE updates SET logs = logs || jsonb_build_array($2::jsonb) WHERE id = $1`,
		id, logJSON)
	return execExpectOne(tag, err, "append update log %s", id)
}

func (s *Store) FinalizeUpdate(ctx context.Context, id string, status update.Status, endTs int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE updates
		SET status = $2, end_ts = $3,
		    success = NOT EXISTS (
		        SELECT 1 FROM jsonb_array_elements(logs) l WHERE (l->>'success')::bool = false
		    )
		WHERE id = $1`,
		id, status, endTs)
	return execExpectOne(tag, err, "finalize update %s", id)
}

func (s *Store) GetUpdate(ctx context.Context, id string) (*update.Update, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+updateColumns+` FROM updates WHERE id = $1`, id)
	u, err := scanUpdate(row)
	if err != nil {
		return nil, notFoundWrap(err, "get update %s", id)
	}
	return &u, nil
}

func (s *Store) ListUpdates(ctx context.Context, target resource.TargetRef, limit int) ([]update.Update, error) {
	var rows pgxRows
	var err error
	if target.Id == "" {
		rows, err = s.pool.Query(ctx, `SELECT `+updateColumns+` FROM updates ORDER BY start_ts DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+updateColumns+` FROM updates
			WHERE target_kind = $1 AND target_id = $2
			ORDER BY start_ts DESC LIMIT $3`, target.Kind, target.Id, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	var out []update.Update
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- Alerts ---

func scanAlert(row scannable) (alert.Alert, error) {
	var a alert.Alert
	var variant string
	var dataJSON []byte
	err := row.Scan(&a.Id, &a.Ts, &a.Resolved, &a.ResolvedTs, &a.Level, &a.Target.Kind, &a.Target.Id, &variant, &dataJSON)
	if err != nil {
		return a, err
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &a.Data); err != nil {
			return a, fmt.Errorf("unmarshal alert data: %w", err)
		}
	}
	a.Data.Variant = alert.Variant(variant)
	return a, nil
}

const alertColumns = `id, ts, resolved, resolved_ts, level, target_kind, target_id, variant, data`

func (s *Store) CreateAlert(ctx context.Context, a *alert.Alert) error {
	if a.Id == "" {
		a.Id = uuid.NewString()
	}
	dataJSON, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("marshal alert data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.Id, a.Ts, a.Resolved, a.ResolvedTs, a.Level, a.Target.Kind, a.Target.Id, string(a.Data.Variant), dataJSON,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// UpdateAlertLevel rewrites an open alert's level and data in place — the
// Warning<->Critical transition never opens a second alert for the same
// (target, variant).
func (s *Store) UpdateAlertLevel(ctx context.Context, id string, level alert.Level, data alert.Data) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal alert data: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET level = $2, data = $3 WHERE id = $1`, id, level, dataJSON)
	return execExpectOne(tag, err, "update alert level %s", id)
}

func (s *Store) ResolveAlert(ctx context.Context, id string, resolvedTs int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET resolved = true, resolved_ts = $2 WHERE id = $1`, id, resolvedTs)
	return execExpectOne(tag, err, "resolve alert %s", id)
}

func (s *Store) ListOpenAlerts(ctx context.Context) ([]alert.Alert, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts WHERE resolved = false ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("list open alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) FindOpenAlert(ctx context.Context, target resource.TargetRef, variant alert.Variant) (*alert.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE resolved = false AND target_kind = $1 AND target_id = $2 AND variant = $3`,
		target.Kind, target.Id, string(variant))
	a, err := scanAlert(row)
	if err != nil {
		return nil, notFoundWrap(err, "find open alert")
	}
	return &a, nil
}

func (s *Store) ListAlerts(ctx context.Context, target *resource.TargetRef, limit int) ([]alert.Alert, error) {
	var rows pgxRows
	var err error
	if target == nil {
		rows, err = s.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY ts DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+alertColumns+` FROM alerts
			WHERE target_kind = $1 AND target_id = $2
			ORDER BY ts DESC LIMIT $3`, target.Kind, target.Id, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Tags ---

func (s *Store) ListTags(ctx context.Context) ([]tag.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, color FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []tag.Tag
	for rows.Next() {
		var t tag.Tag
		if err := rows.Scan(&t.Id, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTag(ctx context.Context, name string) (*tag.Tag, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tags (id, name) VALUES ($1, $2)
		RETURNING id, name, color`, uuid.NewString(), name)
	var t tag.Tag
	if err := row.Scan(&t.Id, &t.Name, &t.Color); err != nil {
		return nil, fmt.Errorf("create tag %s: %w", name, err)
	}
	return &t, nil
}

func (s *Store) DeleteTag(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete tag %s", id)
}

func (s *Store) SetResourceTags(ctx context.Context, target resource.TargetRef, tagIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set resource tags: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM resource_tags WHERE resource_kind = $1 AND resource_id = $2`,
		target.Kind, target.Id,
	); err != nil {
		return fmt.Errorf("set resource tags: clear: %w", err)
	}

	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO resource_tags (resource_kind, resource_id, tag_id) VALUES ($1, $2, $3)`,
			target.Kind, target.Id, tagID,
		); err != nil {
			return fmt.Errorf("set resource tags: insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("set resource tags: commit: %w", err)
	}
	return nil
}

func (s *Store) ListResourceTags(ctx context.Context, target resource.TargetRef) ([]tag.Tag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.color
		FROM tags t
		JOIN resource_tags rt ON rt.tag_id = t.id
		WHERE rt.resource_kind = $1 AND rt.resource_id = $2
		ORDER BY t.name`, target.Kind, target.Id)
	if err != nil {
		return nil, fmt.Errorf("list resource tags: %w", err)
	}
	defer rows.Close()

	var out []tag.Tag
	for rows.Next() {
		var t tag.Tag
		if err := rows.Scan(&t.Id, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Variables ---

func (s *Store) ListVariables(ctx context.Context) ([]variable.Variable, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value, description, is_secret FROM variables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	defer rows.Close()

	var out []variable.Variable
	for rows.Next() {
		var v variable.Variable
		if err := rows.Scan(&v.Name, &v.Value, &v.Description, &v.IsSecret); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) GetVariable(ctx context.Context, name string) (*variable.Variable, error) {
	row := s.pool.QueryRow(ctx, `SELECT name, value, description, is_secret FROM variables WHERE name = $1`, name)
	var v variable.Variable
	if err := row.Scan(&v.Name, &v.Value, &v.Description, &v.IsSecret); err != nil {
		return nil, notFoundWrap(err, "get variable %s", name)
	}
	return &v, nil
}

func (s *Store) UpsertVariable(ctx context.Context, v variable.Variable) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO variables (name, value, description, is_secret)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET value = $2, description = $3, is_secret = $4`,
		v.Name, v.Value, v.Description, v.IsSecret)
	if err != nil {
		return fmt.Errorf("upsert variable %s: %w", v.Name, err)
	}
	return nil
}

func (s *Store) DeleteVariable(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM variables WHERE name = $1`, name)
	return execExpectOne(tag, err, "delete variable %s", name)
}

// --- Permissions / Grants ---

func (s *Store) ListGrants(ctx context.Context, principalKind permission.PrincipalKind, principalID string) ([]permission.Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, principal, principal_id, target_kind, target_id, level
		FROM grants WHERE principal = $1 AND principal_id = $2`, principalKind, principalID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func (s *Store) ListGrantsForTarget(ctx context.Context, target resource.TargetRef) ([]permission.Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, principal, principal_id, target_kind, target_id, level
		FROM grants WHERE target_kind = $1 AND target_id = $2`, target.Kind, target.Id)
	if err != nil {
		return nil, fmt.Errorf("list grants for target: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func scanGrants(rows pgxRows) ([]permission.Grant, error) {
	var out []permission.Grant
	for rows.Next() {
		var g permission.Grant
		if err := rows.Scan(&g.Id, &g.Principal, &g.UserOrID, &g.Target.Kind, &g.Target.Id, &g.Level); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) UpsertGrant(ctx context.Context, g permission.Grant) error {
	if g.Id == "" {
		g.Id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO grants (id, principal, principal_id, target_kind, target_id, level)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (principal, principal_id, target_kind, target_id) DO UPDATE SET level = $6`,
		g.Id, g.Principal, g.UserOrID, g.Target.Kind, g.Target.Id, g.Level)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (s *Store) UpsertKindAllGrant(ctx context.Context, g permission.KindAllGrant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kind_all_grants (user_id, kind, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, kind) DO UPDATE SET level = $3`,
		g.UserId, g.Kind, g.Level)
	if err != nil {
		return fmt.Errorf("upsert kind-all grant: %w", err)
	}
	return nil
}

func (s *Store) ListKindAllGrants(ctx context.Context, userID string) ([]permission.KindAllGrant, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, kind, level FROM kind_all_grants WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list kind-all grants: %w", err)
	}
	defer rows.Close()

	var out []permission.KindAllGrant
	for rows.Next() {
		var g permission.KindAllGrant
		if err := rows.Scan(&g.UserId, &g.Kind, &g.Level); err != nil {
			return nil, fmt.Errorf("scan kind-all grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// --- User Groups ---

func (s *Store) ListGroups(ctx context.Context) ([]user.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM user_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []user.Group
	for rows.Next() {
		var g user.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range groups {
		members, err := s.groupMembers(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Users = members
	}
	return groups, nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*user.Group, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name FROM user_groups WHERE id = $1`, id)
	var g user.Group
	if err := row.Scan(&g.ID, &g.Name); err != nil {
		return nil, notFoundWrap(err, "get group %s", id)
	}
	members, err := s.groupMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Users = members
	return &g, nil
}

func (s *Store) groupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM user_group_members WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		users = append(users, id)
	}
	return orEmpty(users), rows.Err()
}

func (s *Store) CreateGroup(ctx context.Context, name string) (*user.Group, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_groups (id, name) VALUES ($1, $2)
		RETURNING id, name`, uuid.NewString(), name)
	var g user.Group
	if err := row.Scan(&g.ID, &g.Name); err != nil {
		return nil, fmt.Errorf("create group %s: %w", name, err)
	}
	g.Users = []string{}
	return &g, nil
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_group_members (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM user_group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return execExpectOne(tag, err, "remove group member")
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_groups WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete group %s", id)
}
