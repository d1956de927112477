package adapters

import (
	"context"
	"encoding/json"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pkg-exporter/internal/ports"
	"pkg-exporter/internal/types"
)

// PGStore is the read-only query layer over the build system database.
// The exporter never writes through it.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to connect to the build system database").
			WithCause(err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) Platforms(ctx context.Context, names []string) ([]types.Platform, error) {
	const all = `
	SELECT id, name, is_reference
	FROM platforms
	WHERE is_reference = false
	ORDER BY id;
	`
	const byName = `
	SELECT id, name, is_reference
	FROM platforms
	WHERE is_reference = false
	  AND name = ANY($1)
	ORDER BY id;
	`
	var rows pgx.Rows
	var err error
	if len(names) > 0 {
		rows, err = s.pool.Query(ctx, byName, names)
	} else {
		rows, err = s.pool.Query(ctx, all)
	}
	if err != nil {
		return nil, queryError("platforms", err)
	}
	defer rows.Close()

	var platforms []types.Platform
	for rows.Next() {
		var platform types.Platform
		if err := rows.Scan(&platform.ID, &platform.Name, &platform.IsReference); err != nil {
			return nil, queryError("platforms", err)
		}
		platforms = append(platforms, platform)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("platforms", err)
	}

	for i := range platforms {
		repos, err := s.platformRepositories(ctx, platforms[i].ID)
		if err != nil {
			return nil, err
		}
		keys, err := s.platformSignKeys(ctx, platforms[i].ID)
		if err != nil {
			return nil, err
		}
		platforms[i].Repositories = repos
		platforms[i].SignKeys = keys
	}
	return platforms, nil
}

func (s *PGStore) platformRepositories(ctx context.Context, platformID int64) ([]types.Repository, error) {
	const query = `
	SELECT r.id, $1::bigint, r.name, r.arch, r.debug, r.production, r.export_path, r.pulp_href
	FROM repositories r
	JOIN platform_repository pr ON pr.repository_id = r.id
	WHERE pr.platform_id = $1
	ORDER BY r.id;
	`
	return s.queryRepositories(ctx, query, platformID)
}

func (s *PGStore) platformSignKeys(ctx context.Context, platformID int64) ([]types.SignKey, error) {
	const query = `
	SELECT keyid, platform_id
	FROM sign_keys
	WHERE platform_id = $1
	ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, query, platformID)
	if err != nil {
		return nil, queryError("sign keys", err)
	}
	defer rows.Close()
	var keys []types.SignKey
	for rows.Next() {
		var key types.SignKey
		if err := rows.Scan(&key.KeyID, &key.PlatformID); err != nil {
			return nil, queryError("sign keys", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PGStore) Repositories(ctx context.Context, ids []int64) ([]types.Repository, error) {
	const query = `
	SELECT r.id, COALESCE(pr.platform_id, 0), r.name, r.arch, r.debug, r.production, r.export_path, r.pulp_href
	FROM repositories r
	LEFT JOIN platform_repository pr ON pr.repository_id = r.id
	WHERE r.id = ANY($1)
	ORDER BY r.id;
	`
	return s.queryRepositories(ctx, query, ids)
}

func (s *PGStore) Release(ctx context.Context, id int64) (types.Release, error) {
	const query = `
	SELECT id, platform_id, plan
	FROM build_releases
	WHERE id = $1;
	`
	var release types.Release
	var rawPlan []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&release.ID, &release.PlatformID, &rawPlan)
	if err != nil {
		if err == pgx.ErrNoRows {
			return types.Release{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("release not found")
		}
		return types.Release{}, queryError("release", err)
	}
	if len(rawPlan) > 0 {
		if err := json.Unmarshal(rawPlan, &release.Plan); err != nil {
			return types.Release{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to decode release plan").
				WithCause(err)
		}
	}
	return release, nil
}

func (s *PGStore) Distribution(ctx context.Context, name string) (types.Distribution, error) {
	const query = `
	SELECT id, name
	FROM distributions
	WHERE name = $1;
	`
	var distribution types.Distribution
	err := s.pool.QueryRow(ctx, query, name).Scan(&distribution.ID, &distribution.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return types.Distribution{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("distribution not found")
		}
		return types.Distribution{}, queryError("distribution", err)
	}
	const repoQuery = `
	SELECT r.id, 0::bigint, r.name, r.arch, r.debug, r.production, r.export_path, r.pulp_href
	FROM repositories r
	JOIN distribution_repository dr ON dr.repository_id = r.id
	WHERE dr.distribution_id = $1
	ORDER BY r.id;
	`
	repos, err := s.queryRepositories(ctx, repoQuery, distribution.ID)
	if err != nil {
		return types.Distribution{}, err
	}
	distribution.Repositories = repos
	return distribution, nil
}

func (s *PGStore) SignKeys(ctx context.Context) ([]types.SignKey, error) {
	const query = `
	SELECT keyid, platform_id
	FROM sign_keys
	ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, queryError("sign keys", err)
	}
	defer rows.Close()
	var keys []types.SignKey
	for rows.Next() {
		var key types.SignKey
		if err := rows.Scan(&key.KeyID, &key.PlatformID); err != nil {
			return nil, queryError("sign keys", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PGStore) queryRepositories(ctx context.Context, query string, args ...interface{}) ([]types.Repository, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, queryError("repositories", err)
	}
	defer rows.Close()
	var repos []types.Repository
	for rows.Next() {
		var repo types.Repository
		if err := rows.Scan(&repo.ID, &repo.PlatformID, &repo.Name, &repo.Arch,
			&repo.Debug, &repo.Production, &repo.ExportPath, &repo.Href); err != nil {
			return nil, queryError("repositories", err)
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func queryError(what string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("failed to query " + what).
		WithCause(err)
}

var _ ports.StorePort = (*PGStore)(nil)
