package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/komodo-run/core/internal/domain/configdiff"
	"github.com/komodo-run/core/internal/domain/resource"
)

// Store implements database.Store using PostgreSQL. Every resource kind
// (Server, Deployment, Build, ...) lives in the shared `resources` table
// (see migrations/00001_init.sql); the generic helpers in this file do the
// actual CRUD and each kind's exported method in store_resources.go is a
// thin, concretely-typed call into them — Go interfaces and methods can't
// carry type parameters, so the Store type itself stays non-generic.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanResourceRow[C any, I any](row scannable) (resource.Resource[C, I], error) {
	var (
		r          resource.Resource[C, I]
		configJSON []byte
		infoJSON   []byte
	)
	if err := row.Scan(&r.Id, &r.Name, &r.Description, &configJSON, &infoJSON, &r.BasePermission, &r.Version, &r.UpdatedAt); err != nil {
		return r, err
	}
	if err := json.Unmarshal(configJSON, &r.Config); err != nil {
		return r, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal(infoJSON, &r.Info); err != nil {
		return r, fmt.Errorf("unmarshal info: %w", err)
	}
	return r, nil
}

const resourceColumns = `id, name, description, config, info, base_permission, version, updated_at`

func listResources[C any, I any](ctx context.Context, pool *pgxpool.Pool, kind resource.Kind) ([]resource.Resource[C, I], error) {
	rows, err := pool.Query(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE kind = $1 ORDER BY name`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []resource.Resource[C, I]
	for rows.Next() {
		r, err := scanResourceRow[C, I](rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func getResource[C any, I any](ctx context.Context, pool *pgxpool.Pool, kind resource.Kind, id string) (*resource.Resource[C, I], error) {
	row := pool.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE kind = $1 AND id = $2`, string(kind), id)
	r, err := scanResourceRow[C, I](row)
	if err != nil {
		return nil, notFoundWrap(err, "get %s %s", kind, id)
	}
	return &r, nil
}

func getResourceByName[C any, I any](ctx context.Context, pool *pgxpool.Pool, kind resource.Kind, name string) (*resource.Resource[C, I], error) {
	row := pool.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE kind = $1 AND name = $2`, string(kind), name)
	r, err := scanResourceRow[C, I](row)
	if err != nil {
		return nil, notFoundWrap(err, "get %s by name %s", kind, name)
	}
	return &r, nil
}

func createResource[C any, I any](ctx context.Context, pool *pgxpool.Pool, kind resource.Kind, name string, cfg C) (*resource.Resource[C, I], error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s config: %w", kind, err)
	}

	row := pool.QueryRow(ctx, `
		INSERT INTO resources (kind, name, config, info, version, updated_at)
		VALUES ($1, $2, $3, '{}', 1, $4)
		RETURNING `+resourceColumns,
		string(kind), name, configJSON, time.Now().UnixMilli())

	r, err := scanResourceRow[C, I](row)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", kind, name, err)
	}
	return &r, nil
}

// updateResourceConfig fetches the current row, merges partial onto its
// Config via configdiff.MergePartial, and writes the merged config back
// with the version bumped: the Config/PartialConfig/ConfigDiff triad,
// applied generically across every resource kind.
func updateResourceConfig[C any, I any, P any](ctx context.Context, pool *pgxpool.Pool, kind resource.Kind, id string, partial P) (*resource.Resource[C, I], error) {
	current, err := getResource[C, I](ctx, pool, kind, id)
	if err != nil {
		return nil, err
	}

	merged, err := configdiff.MergePartial(current.Config, partial)
	if err != nil {
		return nil, fmt.Errorf("merge %s config: %w", kind, err)
	}

	configJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal %s config: %w", kind, err)
	}

	row := pool.QueryRow(ctx, `
		UPDATE resources SET config = $3, version = version + 1, updated_at = $4
		WHERE kind = $1 AND id = $2
		RETURNING `+resourceColumns,
		string(kind), id, configJSON, time.Now().UnixMilli())

	r, err := scanResourceRow[C, I](row)
	if err != nil {
		return nil, notFoundWrap(err, "update %s %s config", kind, id)
	}
	return &r, nil
}

func updateResourceInfo[I any](ctx context.Context, pool *pgxpool.Pool, kind resource.Kind, id string, info I) error {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal %s info: %w", kind, err)
	}
	tag, err := pool.Exec(ctx, `
		UPDATE resources SET info = $3 WHERE kind = $1 AND id = $2`,
		string(kind), id, infoJSON)
	return execExpectOne(tag, err, "update %s %s info", kind, id)
}

func deleteResource(ctx context.Context, pool *pgxpool.Pool, kind resource.Kind, id string) error {
	tag, err := pool.Exec(ctx, `DELETE FROM resources WHERE kind = $1 AND id = $2`, string(kind), id)
	return execExpectOne(tag, err, "delete %s %s", kind, id)
}
