package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
)

func new_logger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{Level: level}))
}

// --- bootstrap

// runs the job with `args`, returning the process exit code.
// any failure, including a panic, is reported as a single '::error::' line on `stdout`.
func run_action(ctx context.Context, args []string, stdout, stderr io.Writer) (exit_code int) {
	defer func() {
		r := recover()
		if r != nil {
			set_failed(stdout, panic_message(r))
			exit_code = 1
		}
	}()

	config, err := load_config(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		set_failed(stdout, err.Error())
		return 1
	}

	logger := new_logger(stderr, config.LogLevel)
	log_config(logger, config)

	downloader := NewDownloader(new_http_client(logger), logger)
	client := NewGithubClient(downloader, logger, config.Token, config.APIURL, config.PerPage)
	fetcher := NewPackageFetcher(client, downloader, logger)

	_, err = run(ctx, config, fetcher, logger, stdout)
	if err != nil {
		logger.Error("failed to generate repository", "error", err)
		set_failed(stdout, err.Error())
		return 1
	}
	return 0
}

func main() {
	os.Exit(run_action(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
