package config

import (
	"fmt"
	"strings"
)

// ConfigError is returned by Validate. It enumerates every missing required
// key and every invalid value found, not just the first one.
type ConfigError struct {
	Missing  []string
	Problems []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return strings.Join(parts, "; ")
}

// Validate checks every required key and value range, collecting all problems
// into one *ConfigError.
func (c *Config) Validate() error {
	cerr := &ConfigError{}

	required := []struct {
		env   string
		value string
	}{
		{"DB_USER", c.Database.User},
		{"DB_PASSWORD", c.Database.Password},
		{"DB_NAME", c.Database.Name},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cerr.Missing = append(cerr.Missing, r.env)
		}
	}

	if c.Database.Host == "" {
		cerr.Problems = append(cerr.Problems, "DB_HOST must not be empty")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		cerr.Problems = append(cerr.Problems, fmt.Sprintf("DB_PORT=%d is out of range", c.Database.Port))
	}
	if c.Backup.Path == "" {
		cerr.Problems = append(cerr.Problems, "BACKUP_PATH must not be empty")
	}
	// zero would make every artifact expired on the first sweep
	if c.Backup.RetentionDays <= 0 {
		cerr.Problems = append(cerr.Problems, fmt.Sprintf("RETENTION_DAYS must be > 0, got %d", c.Backup.RetentionDays))
	}
	if c.Backup.Timeout < 0 {
		cerr.Problems = append(cerr.Problems, "BACKUP_TIMEOUT must not be negative")
	}
	if c.Backup.DumpBinary == "" {
		cerr.Problems = append(cerr.Problems, "DUMP_BINARY must not be empty")
	}
	if strings.ContainsAny(c.Database.Name, `/\`) {
		cerr.Problems = append(cerr.Problems, fmt.Sprintf("DB_NAME=%q must not contain path separators", c.Database.Name))
	}

	if s3 := c.Mirror.S3; s3.Enabled() {
		if s3.Region == "" {
			cerr.Problems = append(cerr.Problems, "S3_REGION is required when S3_BUCKET is set")
		}
		if s3.AccessKey == "" || s3.SecretKey == "" {
			cerr.Problems = append(cerr.Problems, "S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_BUCKET is set")
		}
	}

	if len(cerr.Missing) == 0 && len(cerr.Problems) == 0 {
		return nil
	}
	return cerr
}
