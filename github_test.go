package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func new_test_github_client(t *testing.T, handler http.HandlerFunc, per_page int) (*GithubClient, *recording_handler) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger, records := new_recording_logger()
	downloader := NewDownloader(server.Client(), logger)
	return NewGithubClient(downloader, logger, "abc", server.URL, per_page), records
}

func Test_ListAllReleases(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/repos/alice/one/releases", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		assert.Equal(t, "token abc", r.Header.Get("Authorization"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page > 2 {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprintf(w, `[{"tag_name": "%d.0.0"}, {"tag_name": "%d.1.0"}]`, page, page)
	}
	client, _ := new_test_github_client(t, handler, 2)

	release_list, err := client.ListAllReleases(context.Background(), "alice", "one")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	tag_list := []string{}
	for _, release := range release_list {
		tag_list = append(tag_list, release.TagName)
	}
	assert.Equal(t, []string{"1.0.0", "1.1.0", "2.0.0", "2.1.0"}, tag_list)
}

func Test_ListAllReleases__no_releases(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `[]`)
	}
	client, _ := new_test_github_client(t, handler, 100)

	release_list, err := client.ListAllReleases(context.Background(), "alice", "one")
	require.NoError(t, err)
	assert.Empty(t, release_list)
	assert.Equal(t, int32(1), calls.Load())
}

func Test_ListAllReleases__error(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `[{"tag_name": "1.0.0"}]`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	}
	client, records := new_test_github_client(t, handler, 1)

	_, err := client.ListAllReleases(context.Background(), "alice", "one")
	require.Error(t, err)

	var upstream_err *UpstreamFetchError
	require.True(t, errors.As(err, &upstream_err))
	assert.Equal(t, "alice", upstream_err.Owner)
	assert.Equal(t, "one", upstream_err.Repo)

	var http_err *HTTPError
	require.True(t, errors.As(err, &http_err))
	assert.Equal(t, http.StatusForbidden, http_err.StatusCode)
	assert.Equal(t, "API rate limit exceeded", http_err.Message)
	assert.Contains(t, err.Error(), "failed to fetch releases for alice/one")

	error_list := records.at(slog.LevelError)
	require.Len(t, error_list, 1)
	assert.Equal(t, "failed to fetch releases", error_list[0].message)
	assert.Equal(t, "alice/one", error_list[0].attrs["repo"])
}

func Test_ListAllReleases__not_a_list(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tag_name": "1.0.0"}`)
	}
	client, _ := new_test_github_client(t, handler, 100)

	_, err := client.ListAllReleases(context.Background(), "alice", "one")
	var upstream_err *UpstreamFetchError
	assert.True(t, errors.As(err, &upstream_err))
}

func Test_github_download__no_token(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		fmt.Fprint(w, `[]`)
	}
	client, _ := new_test_github_client(t, handler, 100)
	client.token = ""

	_, err := client.ListAllReleases(context.Background(), "alice", "one")
	assert.NoError(t, err)
}

func Test_match_assets(t *testing.T) {
	release_list := []GithubRelease{
		{TagName: "1.0.0", AssetList: []Asset{
			{Name: "package.json", BrowserDownloadURL: "https://example.org/1.0.0/package.json"},
			{Name: "tool-1.0.0.zip", BrowserDownloadURL: "https://example.org/1.0.0/tool.zip"},
		}},
		{TagName: "0.9.0", AssetList: []Asset{
			{Name: "tool-0.9.0.zip", BrowserDownloadURL: "https://example.org/0.9.0/tool.zip"},
		}},
		{TagName: "", AssetList: []Asset{
			{Name: "package.json", BrowserDownloadURL: "https://example.org/draft/package.json"},
		}},
		{TagName: "0.1.0"},
	}

	expected := []ReleaseAssets{
		{Tag: "1.0.0", Assets: []AssetInfo{{Name: "package.json", DownloadURL: "https://example.org/1.0.0/package.json"}}},
	}
	assert.Equal(t, expected, match_assets(release_list, regexp.MustCompile(`package\.json`)))

	expected = []ReleaseAssets{
		{Tag: "1.0.0", Assets: []AssetInfo{
			{Name: "package.json", DownloadURL: "https://example.org/1.0.0/package.json"},
			{Name: "tool-1.0.0.zip", DownloadURL: "https://example.org/1.0.0/tool.zip"},
		}},
		{Tag: "0.9.0", Assets: []AssetInfo{{Name: "tool-0.9.0.zip", DownloadURL: "https://example.org/0.9.0/tool.zip"}}},
	}
	assert.Equal(t, expected, match_assets(release_list, nil))

	assert.Equal(t, []ReleaseAssets{}, match_assets(nil, nil))
}

func Test_MatchingAssetDownloadURLs__error(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}
	client, records := new_test_github_client(t, handler, 100)

	_, err := client.MatchingAssetDownloadURLs(context.Background(), "alice", "one", PACKAGE_JSON_PATTERN)
	require.Error(t, err)
	assert.Equal(t, []string{"failed to fetch releases", "failed to get matching assets"}, records.messages(slog.LevelError))
}
