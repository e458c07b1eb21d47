// Package config loads the environment configuration recognised in spec
// §6, following the teacher's plain-struct-plus-os.Getenv convention
// (pkg/config/config.go in the source codebase) rather than a framework
// like viper — there is no nested/remote config source here, just process
// environment and a handful of optional file paths.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the engine needs to start: upstream credentials,
// local store location, default TTLs, timezone hints, and the optional
// object-storage settings for the out-of-scope file-upload helper.
type Config struct {
	UpstreamAPIKey string
	AccountID      string
	CacheFilePath  string

	TTLRecords   time.Duration
	TTLSolutions time.Duration
	TTLTables    time.Duration
	TTLMembers   time.Duration
	TTLTeams     time.Duration
	TTLViews     time.Duration
	TTLLowChurn  time.Duration

	UserEmailHint string
	Timezone      string // IANA name, fixed offset like "+0530", "utc", or "system"

	LogLevel string

	ObjectStorageBucket  string
	ObjectStorageRegion  string
	ObjectStorageProfile string
}

const (
	envAPIKey     = "SMARTSUITE_API_KEY"
	envAccountID  = "SMARTSUITE_ACCOUNT_ID"
	envCachePath  = "SMARTSUITE_CACHE_PATH"
	envTTLRecords = "SMARTSUITE_TTL_RECORDS_SECONDS"
	envTTLMeta    = "SMARTSUITE_TTL_METADATA_SECONDS"
	envTTLLow     = "SMARTSUITE_TTL_LOW_CHURN_SECONDS"
	envEmailHint  = "SMARTSUITE_USER_EMAIL"
	envTimezone   = "SMARTSUITE_TIMEZONE"
	envLogLevel   = "SMARTSUITE_LOG_LEVEL"
	envS3Bucket   = "SMARTSUITE_S3_BUCKET"
	envS3Region   = "SMARTSUITE_S3_REGION"
	envS3Profile  = "SMARTSUITE_S3_PROFILE"
)

// Default TTLs per §3 "TTL config": 12h for records, 7d for
// solutions/tables/members/teams, 30d for very-low-mutation data.
const (
	defaultTTLRecords  = 12 * time.Hour
	defaultTTLMetadata = 7 * 24 * time.Hour
	defaultTTLLowChurn = 30 * 24 * time.Hour
)

// Load reads configuration from the process environment, applying the
// defaults spec §3 specifies for anything left unset.
func Load() (*Config, error) {
	c := &Config{
		UpstreamAPIKey: os.Getenv(envAPIKey),
		AccountID:      os.Getenv(envAccountID),
		CacheFilePath:  firstNonEmpty(os.Getenv(envCachePath), defaultCachePath()),
		TTLRecords:     defaultTTLRecords,
		TTLSolutions:   defaultTTLMetadata,
		TTLTables:      defaultTTLMetadata,
		TTLMembers:     defaultTTLMetadata,
		TTLTeams:       defaultTTLMetadata,
		TTLViews:       defaultTTLMetadata,
		TTLLowChurn:    defaultTTLLowChurn,
		UserEmailHint:  os.Getenv(envEmailHint),
		Timezone:       firstNonEmpty(os.Getenv(envTimezone), "system"),
		LogLevel:       firstNonEmpty(os.Getenv(envLogLevel), "info"),

		ObjectStorageBucket:  os.Getenv(envS3Bucket),
		ObjectStorageRegion:  os.Getenv(envS3Region),
		ObjectStorageProfile: os.Getenv(envS3Profile),
	}

	if v := os.Getenv(envTTLRecords); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envTTLRecords, err)
		}
		c.TTLRecords = d
	}
	if v := os.Getenv(envTTLMeta); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envTTLMeta, err)
		}
		c.TTLSolutions, c.TTLTables, c.TTLMembers, c.TTLTeams, c.TTLViews = d, d, d, d, d
	}
	if v := os.Getenv(envTTLLow); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envTTLLow, err)
		}
		c.TTLLowChurn = d
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the invariants the engine relies on before it opens the
// local store. An empty upstream key is allowed here: some tool calls
// (cache introspection, usage report) need no upstream credential, and the
// upstream client itself is the one that must reject calls at request time.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CacheFilePath) == "" {
		return fmt.Errorf("cache file path must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"records":   c.TTLRecords,
		"solutions": c.TTLSolutions,
		"tables":    c.TTLTables,
		"members":   c.TTLMembers,
		"teams":     c.TTLTeams,
		"views":     c.TTLViews,
		"low-churn": c.TTLLowChurn,
	} {
		if d <= 0 {
			return fmt.Errorf("ttl for %s must be positive", name)
		}
	}
	return nil
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return home + "/.smartsuite-cache/cache.sqlite"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseSeconds(v string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be a positive integer number of seconds, got %q", v)
	}
	return time.Duration(n) * time.Second, nil
}
