package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

const DEFAULT_API_URL = "https://api.github.com"
const DEFAULT_PER_PAGE = 100

// a Release has many Assets
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type"`
}

// a repository release
type GithubRelease struct {
	TagName   string  `json:"tag_name"` // "v1.2.3"
	Name      string  `json:"name"`
	AssetList []Asset `json:"assets"`
}

type AssetInfo struct {
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
}

// the assets of a single release that matched a pattern.
type ReleaseAssets struct {
	Tag    string      `json:"tag"`
	Assets []AssetInfo `json:"assets"`
}

// listing a repository's releases failed part way through.
type UpstreamFetchError struct {
	Owner string
	Repo  string
	Err   error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("failed to fetch releases for %s/%s: %v", e.Owner, e.Repo, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

type GithubClient struct {
	downloader *Downloader
	logger     *slog.Logger
	token      string
	apiURL     string
	perPage    int
}

func NewGithubClient(downloader *Downloader, logger *slog.Logger, token, api_url string, per_page int) *GithubClient {
	if api_url == "" {
		api_url = DEFAULT_API_URL
	}
	if per_page <= 0 {
		per_page = DEFAULT_PER_PAGE
	}
	return &GithubClient{
		downloader: downloader,
		logger:     logger,
		token:      token,
		apiURL:     strings.TrimRight(api_url, "/"),
		perPage:    per_page,
	}
}

// just like `Download` but adds an 'authorization' header to the request.
func (c *GithubClient) github_download(ctx context.Context, url string) (ResponseWrapper, error) {
	headers := map[string]string{
		"Accept": "application/vnd.github+json",
	}
	if c.token != "" {
		headers["Authorization"] = "token " + c.token
	}
	return c.downloader.Download(ctx, url, headers)
}

// fetches a single page of a release listing.
func (c *GithubClient) release_page(ctx context.Context, api_url string) ([]GithubRelease, error) {
	resp, err := c.github_download(ctx, api_url)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        api_url,
			Message:    gjson.Get(resp.Text, "message").String(),
		}
	}

	if !gjson.Parse(resp.Text).IsArray() {
		return nil, fmt.Errorf("expected a list of releases from '%s'", api_url)
	}

	var release_list []GithubRelease
	err = json.Unmarshal([]byte(resp.Text), &release_list)
	if err != nil {
		return nil, fmt.Errorf("failed to parse release listing as JSON: %w", err)
	}
	return release_list, nil
}

// returns every release of `owner/repo`, newest first, as GitHub orders them.
// pages are requested until an empty one comes back. there is no page limit,
// an upstream that never returns an empty page will never finish.
func (c *GithubClient) ListAllReleases(ctx context.Context, owner, repo string) ([]GithubRelease, error) {
	release_list := []GithubRelease{}
	page := 1
	for {
		api_url := c.apiURL + fmt.Sprintf("/repos/%s/%s/releases?per_page=%d&page=%d", url.PathEscape(owner), url.PathEscape(repo), c.perPage, page)
		page_list, err := c.release_page(ctx, api_url)
		if err != nil {
			err = &UpstreamFetchError{Owner: owner, Repo: repo, Err: err}
			c.logger.Error("failed to fetch releases", "repo", owner+"/"+repo, "page", page, "error", err)
			return nil, err
		}

		if len(page_list) == 0 {
			break
		}

		release_list = append(release_list, page_list...)
		page = page + 1
	}
	return release_list, nil
}

// returns the assets of each release whose name matches `pattern`.
// a nil `pattern` matches everything.
// releases without a tag can't be referenced as a version and are skipped,
// as are releases with no matching assets.
func match_assets(release_list []GithubRelease, pattern *regexp.Regexp) []ReleaseAssets {
	result := []ReleaseAssets{}
	for _, release := range release_list {
		if release.TagName == "" {
			continue
		}

		matched_assets := []AssetInfo{}
		for _, asset := range release.AssetList {
			if pattern == nil || pattern.MatchString(asset.Name) {
				matched_assets = append(matched_assets, AssetInfo{
					Name:        asset.Name,
					DownloadURL: asset.BrowserDownloadURL,
				})
			}
		}

		if len(matched_assets) > 0 {
			result = append(result, ReleaseAssets{Tag: release.TagName, Assets: matched_assets})
		}
	}
	return result
}

func (c *GithubClient) MatchingAssetDownloadURLs(ctx context.Context, owner, repo string, pattern *regexp.Regexp) ([]ReleaseAssets, error) {
	release_list, err := c.ListAllReleases(ctx, owner, repo)
	if err != nil {
		c.logger.Error("failed to get matching assets", "repo", owner+"/"+repo, "error", err)
		return nil, err
	}
	return match_assets(release_list, pattern), nil
}
