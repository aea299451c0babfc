package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

// release assets that may be a package's package.json
var PACKAGE_JSON_PATTERN = regexp.MustCompile(`package\.json`)

// reasons a repository is left out of the generated repository.
var (
	ErrInvalidRepositoryFormat = errors.New("invalid repository format")
	ErrFetchingRepositoryInfo  = errors.New("error fetching repository info")
	ErrNoReleasesFound         = errors.New("no releases found")
	ErrNoValidTargetsFound     = errors.New("no valid targets found")
	ErrNoValidTargets          = errors.New("no valid targets")
	ErrFetchingPackageData     = errors.New("error fetching package data")
	ErrNoPackageNamesFound     = errors.New("no package names found")
	ErrNoPackageNameFound      = errors.New("no package name found")
)

// where to download a single version of a package from.
type ReleaseTarget struct {
	Tag string
	URL string
}

type RepositoryInfo struct {
	Author   string
	Repo     string
	Releases []ReleaseTarget
}

// "owner/repo"
func (r RepositoryInfo) FullName() string {
	return r.Author + "/" + r.Repo
}

type RepositoryPackageData struct {
	PackageNameID string
	PackageJSON   VPMPackageVersions
}

type TargetResult struct {
	Tag  string
	Data VPMPackage
}

// satisfied by `GithubClient`.
type AssetLister interface {
	MatchingAssetDownloadURLs(ctx context.Context, owner, repo string, pattern *regexp.Regexp) ([]ReleaseAssets, error)
}

type PackageFetcher struct {
	client     AssetLister
	downloader *Downloader
	logger     *slog.Logger
}

func NewPackageFetcher(client AssetLister, downloader *Downloader, logger *slog.Logger) *PackageFetcher {
	return &PackageFetcher{
		client:     client,
		downloader: downloader,
		logger:     logger,
	}
}

// "v1.0.0" => "1.0.0", "2.0.0" => "2.0.0"
func normalize_tag(tag string) string {
	return strings.TrimPrefix(tag, "v")
}

// "owner/repo" => "owner", "repo"
// anything after a second slash is ignored.
func split_repository(repo_string string) (string, string) {
	bits := strings.Split(repo_string, "/")
	if len(bits) < 2 {
		return bits[0], ""
	}
	return bits[0], bits[1]
}

// finds the releases of `repo_string` that have a package.json asset.
func (f *PackageFetcher) FetchRepositoryInfo(ctx context.Context, repo_string string) (RepositoryInfo, error) {
	empty_response := RepositoryInfo{}

	author, repo := split_repository(repo_string)
	if author == "" || repo == "" {
		f.logger.Warn("invalid repository format", "repo", repo_string)
		return empty_response, fmt.Errorf("%w: '%s'", ErrInvalidRepositoryFormat, repo_string)
	}

	full_name := author + "/" + repo
	f.logger.Debug("fetching repository information", "repo", full_name)

	release_list, err := f.client.MatchingAssetDownloadURLs(ctx, author, repo, PACKAGE_JSON_PATTERN)
	if err != nil {
		f.logger.Error("error fetching repository info", "repo", full_name, "error", err)
		return empty_response, fmt.Errorf("%w for %s: %w", ErrFetchingRepositoryInfo, full_name, err)
	}

	if len(release_list) == 0 {
		f.logger.Warn("no releases found", "repo", full_name)
		return empty_response, fmt.Errorf("%w for %s", ErrNoReleasesFound, full_name)
	}

	// the first matching asset of each release is the one we'll use.
	target_list := []ReleaseTarget{}
	for _, release := range release_list {
		if release.Tag == "" || len(release.Assets) == 0 || release.Assets[0].DownloadURL == "" {
			continue
		}
		target_list = append(target_list, ReleaseTarget{Tag: release.Tag, URL: release.Assets[0].DownloadURL})
	}

	if len(target_list) == 0 {
		f.logger.Warn("no valid targets found", "repo", full_name)
		return empty_response, fmt.Errorf("%w for %s", ErrNoValidTargetsFound, full_name)
	}

	return RepositoryInfo{Author: author, Repo: repo, Releases: target_list}, nil
}

// downloads and parses the package.json at `url`.
func (f *PackageFetcher) fetch_package(ctx context.Context, url string) (VPMPackage, error) {
	resp, err := f.downloader.Download(ctx, url, nil)
	if err != nil {
		return VPMPackage{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return VPMPackage{}, &HTTPError{StatusCode: resp.StatusCode, URL: url, Message: http.StatusText(resp.StatusCode)}
	}
	return parse_vpm_package([]byte(resp.Text))
}

// a failure here is logged and becomes a nil result, it never stops the other targets.
func (f *PackageFetcher) fetch_target(ctx context.Context, i, total int, target ReleaseTarget) *TargetResult {
	f.logger.Debug(fmt.Sprintf("(%d/%d) fetching", i+1, total), "url", target.URL)
	pkg, err := f.fetch_package(ctx, target.URL)
	if err != nil {
		f.logger.Error("failed to fetch", "url", target.URL, "error", err)
		return nil
	}
	f.logger.Debug("fetched", "url", target.URL)
	return &TargetResult{Tag: target.Tag, Data: pkg}
}

// fetches every target at once and waits for all of them.
// results are in target order, with nil for targets that failed.
// an error means the fan-out itself broke, not that a target failed.
func (f *PackageFetcher) fetch_targets(ctx context.Context, target_list []ReleaseTarget) ([]*TargetResult, error) {
	result_list := make([]*TargetResult, len(target_list))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range target_list {
		g.Go(func() error {
			err := recover_panic(func() {
				result_list[i] = f.fetch_target(gctx, i, len(target_list), target)
			})
			if err != nil {
				return fmt.Errorf("fetching '%s' panicked: %w", target.URL, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		return nil, err
	}
	return result_list, nil
}

// downloads the package.json of every release in `repository_info`,
// keyed by version, and settles on a single package name for the repository.
func (f *PackageFetcher) FetchRepositoryPackageData(ctx context.Context, repository_info RepositoryInfo) (RepositoryPackageData, error) {
	empty_response := RepositoryPackageData{}
	full_name := repository_info.FullName()

	valid_target_list := []ReleaseTarget{}
	for _, target := range repository_info.Releases {
		if target.Tag != "" && target.URL != "" {
			valid_target_list = append(valid_target_list, target)
		}
	}

	if len(valid_target_list) == 0 {
		f.logger.Warn("no valid targets", "repo", full_name)
		return empty_response, fmt.Errorf("%w for %s", ErrNoValidTargets, full_name)
	}

	f.logger.Debug("fetching package data", "repo", full_name, "targets", len(valid_target_list))

	result_list, err := f.fetch_targets(ctx, valid_target_list)
	f.logger.Debug("fetching package data done", "repo", full_name)
	if err != nil {
		f.logger.Error("error fetching package data", "repo", full_name, "error", err)
		return empty_response, fmt.Errorf("%w for %s: %w", ErrFetchingPackageData, full_name, err)
	}

	package_versions := VPMPackageVersions{}
	package_names := []string{}
	for _, result := range result_list {
		if result == nil {
			continue
		}
		package_versions[normalize_tag(result.Tag)] = result.Data
		package_names = append(package_names, result.Data.Name)
	}
	// order matters, the first name seen is the one we use.
	package_names = unique(package_names)

	if len(package_names) == 0 {
		f.logger.Warn("no package names found", "repo", full_name)
		return empty_response, fmt.Errorf("%w for %s", ErrNoPackageNamesFound, full_name)
	}

	if len(package_names) > 1 {
		f.logger.Warn("package name is not consistent", "repo", full_name, "names", strings.Join(package_names, ", "))
	}

	package_name_id := package_names[0]
	if package_name_id == "" {
		f.logger.Warn("no package name found", "repo", full_name)
		return empty_response, fmt.Errorf("%w for %s", ErrNoPackageNameFound, full_name)
	}

	return RepositoryPackageData{PackageNameID: package_name_id, PackageJSON: package_versions}, nil
}
