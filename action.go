package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// name of the output the generated repository is published under.
const OUTPUT_NAME = "repository"

type Config struct {
	Token          string
	PackageTitle   string
	PackageAuthor  string
	PackageID      string
	PackageURL     string
	Repositories   []string
	OutputDir      string
	OutputFilename string
	Minified       bool
	APIURL         string
	PerPage        int
	LogLevel       slog.Level
}

// a required input wasn't given.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return "input required and not supplied: " + e.Key
}

var REQUIRED_INPUTS = []string{"token", "package-title", "package-author", "package-id", "package-url"}

func new_flag_set() *pflag.FlagSet {
	flags := pflag.NewFlagSet("vpm-repository-generator", pflag.ContinueOnError)
	flags.String("config", "", "path to a YAML, JSON or TOML file of inputs")
	flags.String("token", "", "GitHub access token")
	flags.String("package-title", "", "name of the generated repository")
	flags.String("package-author", "", "author of the generated repository")
	flags.String("package-id", "", "id of the generated repository")
	flags.String("package-url", "", "URL the generated repository will be served from")
	flags.String("repositories", "", "comma separated list of 'owner/repo' to collect packages from")
	flags.String("output-dir", "", "directory to write the repository to")
	flags.String("output-filename", "", "filename to write the repository to")
	flags.String("minified", "false", "'true' to render the repository on a single line")
	flags.String("api-url", DEFAULT_API_URL, "GitHub API base URL")
	flags.Int("per-page", DEFAULT_PER_PAGE, "releases requested per page")
	flags.String("log-level", "", "debug, info, warn or error (default info, debug when RUNNER_DEBUG=1)")
	return flags
}

// an input with surrounding whitespace removed.
func input(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// "foo/bar, baz/bup,," => ["foo/bar", "baz/bup"]
// a config file may also give a list.
func repository_list(v *viper.Viper) []string {
	var raw_list []string
	switch val := v.Get("repositories").(type) {
	case string:
		raw_list = strings.Split(val, ",")
	default:
		raw_list = v.GetStringSlice("repositories")
	}

	result := []string{}
	for _, repo_string := range raw_list {
		repo_string = strings.TrimSpace(repo_string)
		if repo_string != "" {
			result = append(result, repo_string)
		}
	}
	return result
}

// an empty `level` is 'info', or 'debug' when the runner has debug logging enabled.
func parse_log_level(level string) (slog.Level, error) {
	if level == "" {
		if os.Getenv("RUNNER_DEBUG") == "1" {
			return slog.LevelDebug, nil
		}
		return slog.LevelInfo, nil
	}
	var l slog.Level
	err := l.UnmarshalText([]byte(level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level '%s': %w", level, err)
	}
	return l, nil
}

// reads inputs from `args`, then `INPUT_*` environment variables, then an optional config file.
func load_config(args []string) (Config, error) {
	empty_response := Config{}

	flags := new_flag_set()
	err := flags.Parse(args)
	if err != nil {
		return empty_response, err
	}

	v := viper.New()
	// "package-title" => "INPUT_PACKAGE-TITLE", as the Actions runner sets them
	v.SetEnvPrefix("INPUT")
	v.AutomaticEnv()
	err = v.BindPFlags(flags)
	if err != nil {
		return empty_response, fmt.Errorf("failed to bind flags: %w", err)
	}

	config_file := input(v, "config")
	if config_file != "" {
		v.SetConfigFile(config_file)
		err = v.ReadInConfig()
		if err != nil {
			return empty_response, fmt.Errorf("failed to read config file '%s': %w", config_file, err)
		}
	}

	for _, key := range REQUIRED_INPUTS {
		if input(v, key) == "" {
			return empty_response, &ConfigError{Key: key}
		}
	}

	repositories := repository_list(v)
	if len(repositories) == 0 {
		return empty_response, &ConfigError{Key: "repositories"}
	}

	log_level, err := parse_log_level(input(v, "log-level"))
	if err != nil {
		return empty_response, err
	}

	return Config{
		Token:          input(v, "token"),
		PackageTitle:   input(v, "package-title"),
		PackageAuthor:  input(v, "package-author"),
		PackageID:      input(v, "package-id"),
		PackageURL:     input(v, "package-url"),
		Repositories:   repositories,
		OutputDir:      input(v, "output-dir"),
		OutputFilename: input(v, "output-filename"),
		Minified:       input(v, "minified") == "true",
		APIURL:         input(v, "api-url"),
		PerPage:        v.GetInt("per-page"),
		LogLevel:       log_level,
	}, nil
}

func log_config(logger *slog.Logger, config Config) {
	logger.Debug("token", "value", "***")
	logger.Debug("package-title", "value", config.PackageTitle)
	logger.Debug("package-author", "value", config.PackageAuthor)
	logger.Debug("package-id", "value", config.PackageID)
	logger.Debug("package-url", "value", config.PackageURL)
	logger.Debug("repositories", "value", strings.Join(config.Repositories, ","))
	logger.Debug("output-dir", "value", config.OutputDir)
	logger.Debug("output-filename", "value", config.OutputFilename)
	logger.Debug("minified", "value", config.Minified)
	logger.Debug("api-url", "value", config.APIURL)
	logger.Debug("per-page", "value", config.PerPage)
}

// returns the path the repository should be written to.
// an empty path means don't write a file at all.
func output_path(dir, filename string) string {
	return filepath.Join(dir, filename)
}

// writes `content` to `path`, creating any missing parent directories.
func write_file(logger *slog.Logger, path, content string) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err == nil {
		err = os.WriteFile(path, []byte(content), 0644)
	}
	if err != nil {
		logger.Error("failed to create file", "path", path, "error", err)
		return err
	}
	logger.Debug("file written successfully", "path", path)
	return nil
}

// publishes `value` as the step output `name`.
// outside of an Actions runner there is no output file and `value` is written to `stdout` instead.
func set_output(stdout io.Writer, name, value string) error {
	output_file := os.Getenv("GITHUB_OUTPUT")
	if output_file == "" {
		_, err := fmt.Fprintln(stdout, value)
		return err
	}

	delimiter := "ghadelimiter_" + uuid.NewString()
	if strings.Contains(name, delimiter) || strings.Contains(value, delimiter) {
		return fmt.Errorf("unexpected input: output '%s' contains the delimiter", name)
	}

	fh, err := os.OpenFile(output_file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer fh.Close()

	_, err = fmt.Fprintf(fh, "%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter)
	if err != nil {
		return fmt.Errorf("failed to write output '%s': %w", name, err)
	}
	return nil
}

// "100%\ndone" => "100%25%0Adone"
func escape_command_data(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// marks the run as failed with `msg`.
func set_failed(stdout io.Writer, msg string) {
	fmt.Fprintf(stdout, "::error::%s\n", escape_command_data(msg))
}
