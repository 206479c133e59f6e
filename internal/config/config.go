package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Jira      jira.Config
	Tempo     tempo.Config
	Report    ReportConfig
	DataPath  string
	LogDir    string
	OutputDir string
}

// ReportConfig is everything a single report run needs besides the service connections.
type ReportConfig struct {
	Users            []string // email addresses, processed in this order
	IssueTypes       []string
	From             time.Time
	To               time.Time
	Offset           int
	Limit            int
	MaxPages         int
	IncludeMultiUser bool
	Workers          int
	Formats          []string // csv, jsonl, md
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve Data Paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs"))
	outputDir := getEnv("OUTPUT_DIR", filepath.Join(dataPath, "reports"))

	fields, err := loadFieldMap(getEnv("FIELDS_FILE", ""))
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 60)) * time.Second
	delay := time.Duration(getEnvInt("REQUEST_DELAY_MS", 0)) * time.Millisecond

	from, to, err := defaultRange(time.Now())
	if err != nil {
		return nil, err
	}
	if v := getEnv("REPORT_FROM", ""); v != "" {
		if from, err = ParseDate(v); err != nil {
			return nil, fmt.Errorf("REPORT_FROM: %w", err)
		}
	}
	if v := getEnv("REPORT_TO", ""); v != "" {
		if to, err = ParseDate(v); err != nil {
			return nil, fmt.Errorf("REPORT_TO: %w", err)
		}
	}

	cfg := &AppConfig{
		Jira: jira.Config{
			BaseURL:      getEnv("JIRA_URL", ""),
			APIVersion:   getEnv("JIRA_API_VERSION", "3"),
			Email:        getEnv("JIRA_EMAIL", ""),
			Token:        getEnv("JIRA_TOKEN", ""),
			Fields:       fields,
			Timeout:      timeout,
			RequestDelay: delay,
		},
		Tempo: tempo.Config{
			BaseURL:      getEnv("TEMPO_URL", "https://api.tempo.io/4"),
			Token:        getEnv("TEMPO_TOKEN", ""),
			Timeout:      timeout,
			RequestDelay: delay,
		},
		Report: ReportConfig{
			Users:            SplitList(getEnv("REPORT_USERS", "")),
			IssueTypes:       SplitList(getEnv("REPORT_ISSUE_TYPES", "Story,Bug,Task")),
			From:             from,
			To:               to,
			Offset:           getEnvInt("PAGE_OFFSET", 0),
			Limit:            getEnvInt("PAGE_LIMIT", 50),
			MaxPages:         getEnvInt("MAX_PAGES", 100),
			IncludeMultiUser: getEnvBool("INCLUDE_MULTI_USER", false),
			Workers:          getEnvInt("WORKERS", 1),
			Formats:          SplitList(getEnv("OUTPUT_FORMATS", "csv,md")),
		},
		DataPath:  dataPath,
		LogDir:    logDir,
		OutputDir: outputDir,
	}

	return cfg, nil
}

// Validate checks the settings a report run cannot do without.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Jira.BaseURL == "" {
		errs = append(errs, errors.New("JIRA_URL is required"))
	}
	errs = append(errs, c.Report.Validate())
	return errors.Join(errs...)
}

// Validate checks the report parameters.
func (r ReportConfig) Validate() error {
	var errs []error
	if len(r.Users) == 0 {
		errs = append(errs, errors.New("at least one user email is required"))
	}
	if len(r.IssueTypes) == 0 {
		errs = append(errs, errors.New("at least one issue type is required"))
	}
	if r.From.After(r.To) {
		errs = append(errs, fmt.Errorf("from date %s is after to date %s", r.From.Format(tempo.DateLayout), r.To.Format(tempo.DateLayout)))
	}
	if r.Offset < 0 {
		errs = append(errs, errors.New("page offset must not be negative"))
	}
	if r.Limit <= 0 {
		errs = append(errs, errors.New("page limit must be positive"))
	}
	if r.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if r.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	for _, f := range r.Formats {
		switch f {
		case "csv", "jsonl", "md":
		default:
			errs = append(errs, fmt.Errorf("unknown output format %q", f))
		}
	}
	return errors.Join(errs...)
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(tempo.DateLayout, strings.TrimSpace(s))
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultRange is the first day of the current month up to today.
func defaultRange(now time.Time) (time.Time, time.Time, error) {
	today, err := ParseDate(now.Format(tempo.DateLayout))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, today, nil
}

func loadFieldMap(path string) (jira.FieldMap, error) {
	fields := jira.FieldMap{
		StoryPoints:   getEnv("FIELD_STORY_POINTS", ""),
		BusinessValue: getEnv("FIELD_BUSINESS_VALUE", ""),
		Status:        getEnv("FIELD_STATUS", ""),
		Components:    getEnv("FIELD_COMPONENTS", ""),
		ParentLink:    getEnv("PARENT_LINK_FIELD", ""),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return jira.FieldMap{}, fmt.Errorf("failed to read fields file: %w", err)
		}
		var fromFile jira.FieldMap
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return jira.FieldMap{}, fmt.Errorf("failed to parse fields file %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Loaded field map")
		// Environment variables win over the file.
		fields = fields.Merge(fromFile)
	}

	return fields.Merge(jira.DefaultFieldMap()), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric setting")
	}
	return fallback
}
