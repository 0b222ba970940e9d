package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownEntity    = errors.New("unknown entity")
	ErrUnknownColumn    = errors.New("unknown column")
	ErrUnknownOperation = errors.New("unknown collection operation")
	ErrMissingFilter    = errors.New("filter is required")
)

// findManyLimit caps the rows a findMany returns
const findManyLimit = 1000

// collection describes an entity reachable from declarative job queries
type collection struct {
	table    string
	columns  map[string]bool
	writable bool
}

func columnSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// collections is the whitelist of entities; credentials are never exposed
var collections = map[string]collection{
	"notification": {
		table:    "notifications",
		columns:  columnSet("id", "type", "title", "message", "user_id", "shop_id", "order_id", "created_at"),
		writable: true,
	},
	"webhookEvent": {
		table:    "webhook_events",
		columns:  columnSet("id", "payload", "verified", "created_at"),
		writable: true,
	},
	"job": {
		table: "jobs",
		columns: columnSet("id", "name", "description", "type", "trigger_type", "config", "status",
			"cron_expression", "interval_minutes", "scheduled_at", "last_executed_at", "created_at", "updated_at"),
		writable: true,
	},
	"jobExecution": {
		table: "job_executions",
		columns: columnSet("id", "job_id", "status", "triggered_by", "started_at", "completed_at",
			"duration_ms", "result", "error"),
		writable: true,
	},
	"jobLog": {
		table:    "job_logs",
		columns:  columnSet("id", "job_id", "execution_id", "level", "message", "data", "created_at"),
		writable: true,
	},
	"order": {
		table: "orders",
		columns: columnSet("id", "order_id", "shop_id", "channel", "status", "custom_status", "currency",
			"total_amount", "create_time", "update_time", "created_at", "updated_at"),
	},
}

// ExecuteCollection runs one declarative operation on a whitelisted entity
func (s *Store) ExecuteCollection(ctx context.Context, model, operation string, data, where map[string]any) (any, error) {
	c, ok := collections[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, model)
	}
	if operation != "findMany" && !c.writable {
		return nil, fmt.Errorf("%w: %s is read-only", ErrUnknownOperation, model)
	}

	switch operation {
	case "create":
		return s.createRow(ctx, c, data)
	case "update", "updateMany":
		if operation == "update" && len(where) == 0 {
			return nil, fmt.Errorf("%w: update needs a where clause", ErrMissingFilter)
		}
		return s.updateRows(ctx, c, data, where)
	case "delete", "deleteMany":
		if operation == "delete" && len(where) == 0 {
			return nil, fmt.Errorf("%w: delete needs a where clause", ErrMissingFilter)
		}
		return s.deleteRows(ctx, c, where)
	case "findMany":
		return s.findRows(ctx, c, where)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, operation)
	}
}

// sortedColumns validates the keys of values and returns them in a stable order
func sortedColumns(c collection, values map[string]any) ([]string, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		if !c.columns[name] {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, c.table, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// whereClause builds an AND of equality filters starting at placeholder $offset+1
func whereClause(c collection, where map[string]any, offset int) (string, []any, error) {
	names, err := sortedColumns(c, where)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(names))
	var args []any
	for _, name := range names {
		value := where[name]
		if value == nil {
			parts = append(parts, name+" IS NULL")
			continue
		}
		args = append(args, value)
		parts = append(parts, fmt.Sprintf("%s = $%d", name, offset+len(args)))
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (s *Store) createRow(ctx context.Context, c collection, data map[string]any) (any, error) {
	names, err := sortedColumns(c, data)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: create needs data", ErrUnknownColumn)
	}

	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = data[name]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s row: %w", c.table, err)
	}
	n, _ := res.RowsAffected()
	return map[string]any{"count": n}, nil
}

func (s *Store) updateRows(ctx context.Context, c collection, data, where map[string]any) (any, error) {
	names, err := sortedColumns(c, data)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: update needs data", ErrUnknownColumn)
	}

	sets := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = $%d", name, i+1)
		args[i] = data[name]
	}

	clause, whereArgs, err := whereClause(c, where, len(args))
	if err != nil {
		return nil, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", c.table, strings.Join(sets, ", "), clause)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s rows: %w", c.table, err)
	}
	n, _ := res.RowsAffected()
	return map[string]any{"count": n}, nil
}

func (s *Store) deleteRows(ctx context.Context, c collection, where map[string]any) (any, error) {
	clause, args, err := whereClause(c, where, 0)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM "+c.table+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s rows: %w", c.table, err)
	}
	n, _ := res.RowsAffected()
	return map[string]any{"count": n}, nil
}

func (s *Store) findRows(ctx context.Context, c collection, where map[string]any) (any, error) {
	clause, args, err := whereClause(c, where, 0)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(c.columns))
	for name := range c.columns {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT %d", strings.Join(columns, ", "), c.table, clause, findManyLimit)
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.table, err)
	}
	defer rows.Close()

	results := []map[string]any{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c.table, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
