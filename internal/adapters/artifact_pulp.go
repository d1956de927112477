package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkg-exporter/internal/ports"
	"pkg-exporter/internal/types"
)

const (
	defaultArtifactTimeout  = 60 * time.Second
	filesystemExportersPath = "pulp/api/v3/exporters/core/filesystem/"
	rpmPackagesPath         = "pulp/api/v3/content/rpm/packages/"
	rpmPublicationsPath     = "pulp/api/v3/publications/rpm/rpm/"
)

// ArtifactRepoConfig carries the explicit connection settings of the
// artifact repository service; nothing is read from ambient process
// state.
type ArtifactRepoConfig struct {
	Endpoint string
	Username string
	Password string
	Timeout  time.Duration
}

type ArtifactRepoAdapter struct {
	config ArtifactRepoConfig
	client *http.Client
}

func NewArtifactRepoAdapter(config ArtifactRepoConfig) (*ArtifactRepoAdapter, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("artifact repository endpoint is empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultArtifactTimeout
	}
	return &ArtifactRepoAdapter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (a *ArtifactRepoAdapter) CreateFilesystemExporter(ctx context.Context, name string, path string) (string, error) {
	body, err := a.request(ctx, http.MethodPost, filesystemExportersPath, nil, map[string]string{
		"name": name,
		"path": path,
	})
	if err != nil {
		return "", err
	}
	var created struct {
		Href string `json:"pulp_href"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", decodeError("filesystem exporter", err)
	}
	return created.Href, nil
}

func (a *ArtifactRepoAdapter) DeleteFilesystemExporter(ctx context.Context, href string) error {
	_, err := a.request(ctx, http.MethodDelete, href, nil, nil)
	return err
}

func (a *ArtifactRepoAdapter) ListFilesystemExporters(ctx context.Context) ([]ports.FilesystemExporter, error) {
	var exporters []ports.FilesystemExporter
	err := a.paginate(ctx, filesystemExportersPath, nil, func(results json.RawMessage) error {
		var page []ports.FilesystemExporter
		if err := json.Unmarshal(results, &page); err != nil {
			return decodeError("filesystem exporter list", err)
		}
		exporters = append(exporters, page...)
		return nil
	})
	return exporters, err
}

func (a *ArtifactRepoAdapter) GetLatestVersion(ctx context.Context, repoHref string) (string, error) {
	body, err := a.request(ctx, http.MethodGet, repoHref, nil, nil)
	if err != nil {
		return "", err
	}
	var repo struct {
		LatestVersionHref string `json:"latest_version_href"`
	}
	if err := json.Unmarshal(body, &repo); err != nil {
		return "", decodeError("repository", err)
	}
	if repo.LatestVersionHref == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("repository has no published version")
	}
	return repo.LatestVersionHref, nil
}

func (a *ArtifactRepoAdapter) ExportToFilesystem(ctx context.Context, exporterHref string, versionHref string) error {
	_, err := a.request(ctx, http.MethodPost, joinPath(exporterHref, "exports/"), nil, map[string]string{
		"repository_version": versionHref,
	})
	return err
}

func (a *ArtifactRepoAdapter) ListPackages(ctx context.Context, filter ports.PackageFilter) ([]types.PackageRecord, error) {
	params := url.Values{}
	if filter.Arch != "" {
		params.Set("arch", string(filter.Arch))
	}
	if filter.VersionHref != "" {
		params.Set("repository_version", filter.VersionHref)
	}
	if len(filter.Fields) > 0 {
		params.Set("fields", strings.Join(filter.Fields, ","))
	}
	var packages []types.PackageRecord
	err := a.paginate(ctx, rpmPackagesPath, params, func(results json.RawMessage) error {
		var page []types.PackageRecord
		if err := json.Unmarshal(results, &page); err != nil {
			return decodeError("package list", err)
		}
		packages = append(packages, page...)
		return nil
	})
	return packages, err
}

func (a *ArtifactRepoAdapter) ListPublications(ctx context.Context, versionHref string) ([]string, error) {
	params := url.Values{}
	params.Set("repository_version", versionHref)
	params.Set("fields", "pulp_href")
	var hrefs []string
	err := a.paginate(ctx, rpmPublicationsPath, params, func(results json.RawMessage) error {
		var page []struct {
			Href string `json:"pulp_href"`
		}
		if err := json.Unmarshal(results, &page); err != nil {
			return decodeError("publication list", err)
		}
		for _, publication := range page {
			hrefs = append(hrefs, publication.Href)
		}
		return nil
	})
	return hrefs, err
}

func (a *ArtifactRepoAdapter) ModifyContent(ctx context.Context, repoHref string, add []string, remove []string) error {
	// Add and remove ride in one call so the service applies them as a
	// single version transition.
	_, err := a.request(ctx, http.MethodPost, joinPath(repoHref, "modify/"), nil, map[string][]string{
		"add_content_units":    add,
		"remove_content_units": remove,
	})
	return err
}

func (a *ArtifactRepoAdapter) CreatePublication(ctx context.Context, repoHref string) error {
	_, err := a.request(ctx, http.MethodPost, rpmPublicationsPath, nil, map[string]string{
		"repository": repoHref,
	})
	return err
}

// paginate follows the service's cursor chain to exhaustion, handing
// each page's results array to collect.
func (a *ArtifactRepoAdapter) paginate(ctx context.Context, path string, params url.Values, collect func(json.RawMessage) error) error {
	next := path
	nextParams := params
	for next != "" {
		body, err := a.request(ctx, http.MethodGet, next, nextParams, nil)
		if err != nil {
			return err
		}
		var page struct {
			Results json.RawMessage `json:"results"`
			Next    string          `json:"next"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return decodeError("paginated listing", err)
		}
		if len(page.Results) > 0 {
			if err := collect(page.Results); err != nil {
				return err
			}
		}
		if page.Next == "" {
			return nil
		}
		parsed, err := url.Parse(page.Next)
		if err != nil {
			return decodeError("pagination cursor", err)
		}
		next = parsed.Path
		if parsed.RawQuery != "" {
			next += "?" + parsed.RawQuery
		}
		nextParams = nil
	}
	return nil
}

func (a *ArtifactRepoAdapter) request(ctx context.Context, method string, path string, params url.Values, payload interface{}) ([]byte, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(a.config.Endpoint), "/")
	fullURL := endpoint + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, decodeError("request payload", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create artifact repository request").
			WithCause(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.config.Username != "" {
		req.SetBasicAuth(a.config.Username, a.config.Password)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("artifact repository request failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := errbuilder.CodeInternal
		if resp.StatusCode == http.StatusNotFound {
			code = errbuilder.CodeNotFound
		}
		return nil, errbuilder.New().
			WithCode(code).
			WithMsg("artifact repository request failed").
			WithCause(fmt.Errorf("status=%d url=%s response=%s",
				resp.StatusCode, fullURL, strings.TrimSpace(string(body))))
	}
	return body, nil
}

func joinPath(base string, suffix string) string {
	return strings.TrimRight(base, "/") + "/" + suffix
}

func decodeError(what string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("failed to decode " + what + " response").
		WithCause(err)
}

var _ ports.ArtifactRepoPort = (*ArtifactRepoAdapter)(nil)
