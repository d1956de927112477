//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pkg-exporter/internal/adapters"
	"pkg-exporter/internal/types"
)

const buildSystemSchema = `
CREATE TABLE platforms (
    id           bigint PRIMARY KEY,
    name         text NOT NULL,
    is_reference boolean NOT NULL DEFAULT false
);

CREATE TABLE repositories (
    id          bigint PRIMARY KEY,
    name        text NOT NULL,
    arch        text NOT NULL,
    debug       boolean NOT NULL DEFAULT false,
    production  boolean NOT NULL DEFAULT false,
    export_path text NOT NULL DEFAULT '',
    pulp_href   text NOT NULL DEFAULT ''
);

CREATE TABLE platform_repository (
    platform_id   bigint NOT NULL REFERENCES platforms (id),
    repository_id bigint NOT NULL REFERENCES repositories (id)
);

CREATE TABLE sign_keys (
    id          bigserial PRIMARY KEY,
    keyid       text NOT NULL,
    platform_id bigint NOT NULL REFERENCES platforms (id)
);

CREATE TABLE build_releases (
    id          bigint PRIMARY KEY,
    platform_id bigint NOT NULL REFERENCES platforms (id),
    plan        jsonb
);

CREATE TABLE distributions (
    id   bigint PRIMARY KEY,
    name text NOT NULL
);

CREATE TABLE distribution_repository (
    distribution_id bigint NOT NULL REFERENCES distributions (id),
    repository_id   bigint NOT NULL REFERENCES repositories (id)
);
`

const buildSystemSeed = `
INSERT INTO platforms (id, name, is_reference) VALUES
    (1, 'el8', false),
    (2, 'el9', false),
    (3, 'el8-mirror', true);

INSERT INTO repositories (id, name, arch, debug, production, export_path, pulp_href) VALUES
    (10, 'baseos', 'x86_64',  false, true,  'el8/baseos/x86_64/os',  '/repos/el8-x86/'),
    (11, 'baseos', 'ppc64le', false, true,  'el8/baseos/ppc64le/os', '/repos/el8-ppc/'),
    (12, 'baseos', 'x86_64',  true,  true,  'el8/baseos/x86_64/debug/tree', '/repos/el8-x86-debug/'),
    (20, 'baseos', 'x86_64',  false, true,  'el9/baseos/x86_64/os',  '/repos/el9-x86/'),
    (30, 'baseos', 'x86_64',  false, false, 'mirror/baseos/x86_64/os', '/repos/mirror/');

INSERT INTO platform_repository (platform_id, repository_id) VALUES
    (1, 10), (1, 11), (1, 12),
    (2, 20),
    (3, 30);

INSERT INTO sign_keys (keyid, platform_id) VALUES
    ('51d6647ec21ad6ea', 1),
    ('d36cb86cb86b3716', 2);

INSERT INTO build_releases (id, platform_id, plan) VALUES
    (7, 1, '{"packages": [{"repositories": [{"id": 10}, {"id": 11}]}, {"repositories": [{"id": 10}]}]}'),
    (8, 2, NULL);

INSERT INTO distributions (id, name) VALUES (5, 'user-distro');

INSERT INTO distribution_repository (distribution_id, repository_id) VALUES
    (5, 10), (5, 11);
`

func startBuildSystemDB(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("buildsystem"),
		tcpostgres.WithUsername("exporter"),
		tcpostgres.WithPassword("exporter"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	_, err = pool.Exec(ctx, buildSystemSchema)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, buildSystemSeed)
	require.NoError(t, err)
	return dsn
}

func TestPGStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers integration in short mode")
	}

	ctx := t.Context()
	dsn := startBuildSystemDB(ctx, t)
	store, err := adapters.NewPGStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	t.Run("platforms excludes reference mirrors", func(t *testing.T) {
		platforms, err := store.Platforms(ctx, nil)
		require.NoError(t, err)
		require.Len(t, platforms, 2)

		el8 := platforms[0]
		require.Equal(t, "el8", el8.Name)
		require.Len(t, el8.Repositories, 3)
		require.Equal(t, []types.SignKey{
			{KeyID: "51d6647ec21ad6ea", PlatformID: 1},
		}, el8.SignKeys)

		first := el8.Repositories[0]
		require.Equal(t, int64(10), first.ID)
		require.Equal(t, int64(1), first.PlatformID)
		require.Equal(t, types.ArchX8664, first.Arch)
		require.True(t, first.Production)
		require.Equal(t, "el8/baseos/x86_64/os", first.ExportPath)
		require.Equal(t, "/repos/el8-x86/", first.Href)
		require.True(t, el8.Repositories[2].Debug)
	})

	t.Run("platforms by name", func(t *testing.T) {
		platforms, err := store.Platforms(ctx, []string{"el9"})
		require.NoError(t, err)
		require.Len(t, platforms, 1)
		require.Equal(t, "el9", platforms[0].Name)

		platforms, err = store.Platforms(ctx, []string{"el8-mirror"})
		require.NoError(t, err)
		require.Empty(t, platforms)
	})

	t.Run("repositories by id", func(t *testing.T) {
		repos, err := store.Repositories(ctx, []int64{10, 20, 999})
		require.NoError(t, err)
		require.Len(t, repos, 2)
		require.Equal(t, int64(10), repos[0].ID)
		require.Equal(t, int64(1), repos[0].PlatformID)
		require.Equal(t, int64(20), repos[1].ID)
		require.Equal(t, int64(2), repos[1].PlatformID)
	})

	t.Run("release plan decodes", func(t *testing.T) {
		release, err := store.Release(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, int64(1), release.PlatformID)
		require.Equal(t, []int64{10, 11}, release.Plan.RepositoryIDs())
	})

	t.Run("release with null plan", func(t *testing.T) {
		release, err := store.Release(ctx, 8)
		require.NoError(t, err)
		require.Empty(t, release.Plan.RepositoryIDs())
	})

	t.Run("release not found", func(t *testing.T) {
		_, err := store.Release(ctx, 999)
		require.Error(t, err)
	})

	t.Run("distribution with repositories", func(t *testing.T) {
		distribution, err := store.Distribution(ctx, "user-distro")
		require.NoError(t, err)
		require.Equal(t, int64(5), distribution.ID)
		require.Len(t, distribution.Repositories, 2)
		require.Equal(t, types.ArchPpc64le, distribution.Repositories[1].Arch)
	})

	t.Run("distribution not found", func(t *testing.T) {
		_, err := store.Distribution(ctx, "missing")
		require.Error(t, err)
	})

	t.Run("sign keys across platforms", func(t *testing.T) {
		keys, err := store.SignKeys(ctx)
		require.NoError(t, err)
		require.Equal(t, []types.SignKey{
			{KeyID: "51d6647ec21ad6ea", PlatformID: 1},
			{KeyID: "d36cb86cb86b3716", PlatformID: 2},
		}, keys)
	})
}
