package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// satisfied by `PackageFetcher`.
type RepositoryFetcher interface {
	FetchRepositoryInfo(ctx context.Context, repo_string string) (RepositoryInfo, error)
	FetchRepositoryPackageData(ctx context.Context, repository_info RepositoryInfo) (RepositoryPackageData, error)
}

// calls `fn`, returning anything it panics with as an error.
func recover_panic(fn func()) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = errors.New(panic_message(r))
		}
	}()
	fn()
	return nil
}

// resolves and fetches every repository in `repositories` concurrently,
// then folds the results into a single collection in the order they were configured.
// a repository that is skipped is simply absent from the collection.
// when two repositories publish the same package the later one replaces the earlier one entirely.
func collect_packages(ctx context.Context, fetcher RepositoryFetcher, logger *slog.Logger, repositories []string) (VPMPackagesCollection, error) {
	info_list := make([]*RepositoryInfo, len(repositories))
	var g errgroup.Group
	for i, repo_string := range repositories {
		g.Go(func() error {
			return recover_panic(func() {
				info, err := fetcher.FetchRepositoryInfo(ctx, repo_string)
				if err != nil {
					logger.Debug("skipping repository", "repo", repo_string, "reason", err)
					return
				}
				info_list[i] = &info
			})
		})
	}
	err := g.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repositories: %w", err)
	}

	// ---

	data_list := make([]*RepositoryPackageData, len(repositories))
	var g2 errgroup.Group
	for i, info := range info_list {
		if info == nil {
			continue
		}
		g2.Go(func() error {
			return recover_panic(func() {
				data, err := fetcher.FetchRepositoryPackageData(ctx, *info)
				if err != nil {
					logger.Debug("skipping repository", "repo", repositories[i], "reason", err)
					return
				}
				data_list[i] = &data
			})
		})
	}
	err = g2.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package data: %w", err)
	}

	// ---

	resolved := 0
	for _, info := range info_list {
		if info != nil {
			resolved++
		}
	}

	packages := VPMPackagesCollection{}
	for i, data := range data_list {
		if data == nil {
			continue
		}
		_, present := packages[data.PackageNameID]
		if present {
			logger.Info("replacing package", "package", data.PackageNameID, "repo", repositories[i])
		}
		packages[data.PackageNameID] = VPMPackageEntry{Versions: data.PackageJSON}
	}

	logger.Info("collected packages", "repositories", len(repositories), "resolved", resolved, "packages", len(packages))
	return packages, nil
}

// builds the repository from the configured repositories, publishes it and writes it to disk.
// returns the serialized repository.
func run(ctx context.Context, config Config, fetcher RepositoryFetcher, logger *slog.Logger, stdout io.Writer) (string, error) {
	packages, err := collect_packages(ctx, fetcher, logger, config.Repositories)
	if err != nil {
		return "", err
	}

	generator := NewRepositoryGenerator(config.PackageTitle, config.PackageID, config.PackageURL, config.PackageAuthor)
	repository := generator.GenerateRepository(packages)

	output, err := serialize_repository(repository, config.Minified)
	if err != nil {
		return "", fmt.Errorf("failed to serialize repository: %w", err)
	}

	err = set_output(stdout, OUTPUT_NAME, output)
	if err != nil {
		return "", fmt.Errorf("failed to set output '%s': %w", OUTPUT_NAME, err)
	}

	path := output_path(config.OutputDir, config.OutputFilename)
	if path != "" {
		err = write_file(logger, path, output)
		if err != nil {
			logger.Warn("repository not written to file, continuing", "path", path)
		}
	}

	return output, nil
}
