package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/runward/runward/internal/core"
	_ "modernc.org/sqlite"
)

// TaskDB implements core.TaskStore against the SQLite task database the
// workflow runtime keeps next to its control directory. The database is
// never opened in place over the wire: reads fetch a copy to a host temp
// file, and the one sanctioned write (ResetNodes) is fetch-modify-push,
// applied only after the remote process is confirmed dead.
type TaskDB struct {
	runner Runner
}

// NewTaskDB creates a task store over the given channel.
func NewTaskDB(runner Runner) *TaskDB {
	return &TaskDB{runner: runner}
}

// LoadNodes reads every task node row in dependency order.
func (t *TaskDB) LoadNodes(ctx context.Context, target core.Target) ([]core.TaskNodeState, error) {
	local, cleanup, err := t.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	db, err := sql.Open("sqlite", local+"?mode=ro")
	if err != nil {
		return nil, core.ErrDatabaseUnavailable(target, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT node_id, ord, state, last_attempt_at
		FROM task_nodes ORDER BY ord
	`)
	if err != nil {
		return nil, core.ErrDatabaseUnavailable(target, err)
	}
	defer rows.Close()

	var nodes []core.TaskNodeState
	for rows.Next() {
		var n core.TaskNodeState
		var state string
		var lastAttempt sql.NullTime
		if err := rows.Scan(&n.NodeID, &n.Ord, &state, &lastAttempt); err != nil {
			return nil, core.ErrDatabaseUnavailable(target, err)
		}
		ns, err := core.ParseNodeState(state)
		if err != nil {
			return nil, core.ErrDatabaseUnavailable(target, err)
		}
		n.State = ns
		if lastAttempt.Valid {
			at := lastAttempt.Time
			n.LastAttemptAt = &at
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrDatabaseUnavailable(target, err)
	}
	return nodes, nil
}

// ResetNodes demotes the given in-progress nodes back to pending. Rows in
// any other state are left untouched even when named, so a finished node
// can never lose work to a planner bug.
func (t *TaskDB) ResetNodes(ctx context.Context, target core.Target, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	local, cleanup, err := t.fetch(ctx, target)
	if err != nil {
		return err
	}
	defer cleanup()

	db, err := sql.Open("sqlite", local)
	if err != nil {
		return core.ErrDatabaseUnavailable(target, err)
	}

	placeholders := strings.Repeat("?,", len(nodeIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		args = append(args, id)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE task_nodes
		SET state = 'pending', last_attempt_at = NULL
		WHERE node_id IN (%s) AND state = 'in-progress'
	`, placeholders), args...)
	if err != nil {
		_ = db.Close()
		return core.ErrDatabaseUnavailable(target, err)
	}
	if err := db.Close(); err != nil {
		return core.ErrDatabaseUnavailable(target, err)
	}

	if err := t.runner.Push(ctx, target, local, target.TaskDB); err != nil {
		return fmt.Errorf("pushing task database to %s: %w", target.Host, err)
	}
	return nil
}

// fetch copies the remote task database to a host temp file. The caller owns
// the returned cleanup.
func (t *TaskDB) fetch(ctx context.Context, target core.Target) (string, func(), error) {
	dir, err := os.MkdirTemp("", "runward-taskdb-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	local := filepath.Join(dir, filepath.Base(target.TaskDB))
	if err := t.runner.Fetch(ctx, target, target.TaskDB, local); err != nil {
		cleanup()
		if errors.Is(err, ErrUnreachable) {
			return "", nil, err
		}
		return "", nil, core.ErrDatabaseUnavailable(target, err)
	}
	return local, cleanup, nil
}

var _ core.TaskStore = (*TaskDB)(nil)
