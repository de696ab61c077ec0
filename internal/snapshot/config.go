package snapshot

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gym-snapshot/internal/catalog"
)

// Config represents the complete snapshot engine configuration
type Config struct {
	Storage     StorageConfig     `yaml:"storage" mapstructure:"storage"`
	Compression CompressionConfig `yaml:"compression" mapstructure:"compression"`
	Restore     RestoreConfig     `yaml:"restore" mapstructure:"restore"`
	Selective   SelectiveConfig   `yaml:"selective" mapstructure:"selective"`
	Audit       AuditConfig       `yaml:"audit" mapstructure:"audit"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// CompressionConfig defines how snapshot files are compressed on save
type CompressionConfig struct {
	Algorithm CompressionType `yaml:"algorithm" mapstructure:"algorithm"`
	Level     int             `yaml:"level" mapstructure:"level"`
}

// RestoreConfig bounds the restore operation
type RestoreConfig struct {
	MaxWait     time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
	MaxDuration time.Duration `yaml:"max_duration" mapstructure:"max_duration"`
	WipeScope   WipeScope     `yaml:"wipe_scope" mapstructure:"wipe_scope"`
}

// SelectiveConfig holds selective snapshot defaults
type SelectiveConfig struct {
	DefaultTables []string `yaml:"default_tables" mapstructure:"default_tables"`
}

// AuditConfig controls the audit trail of gated calls
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	File    string `yaml:"file" mapstructure:"file"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	// Textfile is written after each command when set.
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	config := &Config{}
	config.SetDefaults()
	return config
}

// Validate validates the Config
func (c *Config) Validate() error {
	var errors ValidationErrors

	for _, validate := range []func() error{
		c.Storage.Validate,
		c.Compression.Validate,
		c.Restore.Validate,
		c.Selective.Validate,
		c.Audit.Validate,
	} {
		if err := validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add("config", err.Error(), nil)
			}
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for the whole configuration
func (c *Config) SetDefaults() {
	c.Storage.SetDefaults()
	c.Compression.SetDefaults()
	c.Restore.SetDefaults()
	c.Selective.SetDefaults()
	c.Audit.SetDefaults()
}

// LoadFromEnvironment loads configuration values from environment variables
func (c *Config) LoadFromEnvironment() {
	c.Storage.LoadFromEnvironment()
	c.Compression.LoadFromEnvironment()
	c.Restore.LoadFromEnvironment()
	c.Selective.LoadFromEnvironment()
	c.Audit.LoadFromEnvironment()
	if val := os.Getenv("SNAPSHOT_METRICS_TEXTFILE"); val != "" {
		c.Metrics.Textfile = val
	}
}

// Validate validates the StorageConfig
func (sc *StorageConfig) Validate() error {
	var errors ValidationErrors

	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			errors.Add("storage.local", "local storage configuration is required", nil)
		} else if err := sc.Local.Validate(); err != nil {
			errors.Add("storage.local", err.Error(), nil)
		}
	case StorageProviderS3:
		if sc.S3 == nil {
			errors.Add("storage.s3", "S3 storage configuration is required", nil)
		} else if err := sc.S3.Validate(); err != nil {
			errors.Add("storage.s3", err.Error(), nil)
		}
	case StorageProviderAzure:
		if sc.Azure == nil {
			errors.Add("storage.azure", "Azure storage configuration is required", nil)
		} else if err := sc.Azure.Validate(); err != nil {
			errors.Add("storage.azure", err.Error(), nil)
		}
	case StorageProviderGCS:
		if sc.GCS == nil {
			errors.Add("storage.gcs", "GCS storage configuration is required", nil)
		} else if err := sc.GCS.Validate(); err != nil {
			errors.Add("storage.gcs", err.Error(), nil)
		}
	case "":
		errors.Add("storage.provider", "storage provider is required", nil)
	default:
		errors.Add("storage.provider", "unsupported storage provider", sc.Provider)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for storage configuration
func (sc *StorageConfig) SetDefaults() {
	if sc.Provider == "" {
		sc.Provider = StorageProviderLocal
	}
	sc.Provider = StorageProviderType(strings.ToLower(string(sc.Provider)))

	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			sc.Local = &LocalConfig{}
		}
		sc.Local.SetDefaults()
	case StorageProviderS3:
		if sc.S3 != nil && sc.S3.Prefix == "" {
			sc.S3.Prefix = DefaultObjectPrefix
		}
	case StorageProviderAzure:
		if sc.Azure != nil && sc.Azure.Prefix == "" {
			sc.Azure.Prefix = DefaultObjectPrefix
		}
	case StorageProviderGCS:
		if sc.GCS != nil && sc.GCS.Prefix == "" {
			sc.GCS.Prefix = DefaultObjectPrefix
		}
	}
}

// LoadFromEnvironment loads storage configuration from environment variables
func (sc *StorageConfig) LoadFromEnvironment() {
	if val := os.Getenv("SNAPSHOT_STORAGE_PROVIDER"); val != "" {
		sc.Provider = StorageProviderType(strings.ToLower(val))
	}

	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			sc.Local = &LocalConfig{}
		}
		if val := os.Getenv("SNAPSHOT_LOCAL_BASE_PATH"); val != "" {
			sc.Local.BasePath = val
		}
		if val := os.Getenv("SNAPSHOT_LOCAL_PERMISSIONS"); val != "" {
			if parsed, err := strconv.ParseUint(val, 8, 32); err == nil {
				sc.Local.Permissions = os.FileMode(parsed)
			}
		}
	case StorageProviderS3:
		if sc.S3 == nil {
			sc.S3 = &S3Config{}
		}
		if val := os.Getenv("SNAPSHOT_S3_BUCKET"); val != "" {
			sc.S3.Bucket = val
		}
		if val := os.Getenv("SNAPSHOT_S3_REGION"); val != "" {
			sc.S3.Region = val
		}
		if val := os.Getenv("SNAPSHOT_S3_PREFIX"); val != "" {
			sc.S3.Prefix = val
		}
		if val := os.Getenv("SNAPSHOT_S3_ENDPOINT"); val != "" {
			sc.S3.Endpoint = val
		}
		if val := os.Getenv("AWS_ACCESS_KEY_ID"); val != "" {
			sc.S3.AccessKey = val
		}
		if val := os.Getenv("AWS_SECRET_ACCESS_KEY"); val != "" {
			sc.S3.SecretKey = val
		}
	case StorageProviderAzure:
		if sc.Azure == nil {
			sc.Azure = &AzureConfig{}
		}
		if val := os.Getenv("AZURE_STORAGE_ACCOUNT"); val != "" {
			sc.Azure.AccountName = val
		}
		if val := os.Getenv("AZURE_STORAGE_KEY"); val != "" {
			sc.Azure.AccountKey = val
		}
		if val := os.Getenv("SNAPSHOT_AZURE_CONTAINER"); val != "" {
			sc.Azure.ContainerName = val
		}
	case StorageProviderGCS:
		if sc.GCS == nil {
			sc.GCS = &GCSConfig{}
		}
		if val := os.Getenv("SNAPSHOT_GCS_BUCKET"); val != "" {
			sc.GCS.Bucket = val
		}
		if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
			sc.GCS.CredentialsPath = val
		}
		if val := os.Getenv("GOOGLE_CLOUD_PROJECT"); val != "" {
			sc.GCS.ProjectID = val
		}
	}
}

// Validate validates the LocalConfig
func (lc *LocalConfig) Validate() error {
	if lc.BasePath == "" {
		return fmt.Errorf("base path is required")
	}
	if lc.Permissions != 0 && lc.Permissions&0700 != 0700 {
		return fmt.Errorf("permissions %o must grant the owner full access to the directory", lc.Permissions)
	}
	return nil
}

// SetDefaults sets default values for local storage
func (lc *LocalConfig) SetDefaults() {
	if lc.BasePath == "" {
		lc.BasePath = "./snapshots"
	}
	if lc.Permissions == 0 {
		lc.Permissions = 0755
	}
}

// Validate validates the S3Config
func (s3c *S3Config) Validate() error {
	if s3c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if s3c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if (s3c.AccessKey == "") != (s3c.SecretKey == "") {
		return fmt.Errorf("access key and secret key must be set together")
	}
	return nil
}

// Validate validates the AzureConfig
func (ac *AzureConfig) Validate() error {
	if ac.AccountName == "" {
		return fmt.Errorf("account name is required")
	}
	if ac.AccountKey == "" {
		return fmt.Errorf("account key is required")
	}
	if ac.ContainerName == "" {
		return fmt.Errorf("container name is required")
	}
	return nil
}

// Validate validates the GCSConfig
func (gc *GCSConfig) Validate() error {
	if gc.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}

// Validate validates the CompressionConfig
func (cc *CompressionConfig) Validate() error {
	var errors ValidationErrors

	algorithm, err := ParseCompressionType(string(cc.Algorithm))
	if err != nil {
		errors.Add("compression.algorithm", "invalid compression algorithm", cc.Algorithm)
	}

	if cc.Level != 0 {
		switch algorithm {
		case CompressionTypeGzip:
			if cc.Level < 1 || cc.Level > 9 {
				errors.Add("compression.level", "gzip compression level must be between 1 and 9", cc.Level)
			}
		case CompressionTypeLZ4:
			if cc.Level < 1 || cc.Level > 12 {
				errors.Add("compression.level", "lz4 compression level must be between 1 and 12", cc.Level)
			}
		case CompressionTypeZstd:
			if cc.Level < 1 || cc.Level > 22 {
				errors.Add("compression.level", "zstd compression level must be between 1 and 22", cc.Level)
			}
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for compression configuration
func (cc *CompressionConfig) SetDefaults() {
	if algorithm, err := ParseCompressionType(string(cc.Algorithm)); err == nil {
		cc.Algorithm = algorithm
	}

	if cc.Level == 0 {
		switch cc.Algorithm {
		case CompressionTypeGzip:
			cc.Level = 6
		case CompressionTypeLZ4:
			cc.Level = 1
		case CompressionTypeZstd:
			cc.Level = 3
		}
	}
}

// LoadFromEnvironment loads compression configuration from environment variables
func (cc *CompressionConfig) LoadFromEnvironment() {
	if val := os.Getenv("SNAPSHOT_COMPRESSION_ALGORITHM"); val != "" {
		cc.Algorithm = CompressionType(strings.ToLower(val))
	}

	if val := os.Getenv("SNAPSHOT_COMPRESSION_LEVEL"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cc.Level = parsed
		}
	}
}

// Validate validates the RestoreConfig
func (rc *RestoreConfig) Validate() error {
	var errors ValidationErrors

	if rc.MaxWait < 0 {
		errors.Add("restore.max_wait", "max wait cannot be negative", rc.MaxWait)
	}
	if rc.MaxDuration < 0 {
		errors.Add("restore.max_duration", "max duration cannot be negative", rc.MaxDuration)
	}
	if _, err := ParseWipeScope(string(rc.WipeScope)); err != nil {
		errors.Add("restore.wipe_scope", "wipe scope must be 'catalog' or 'included'", rc.WipeScope)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for restore configuration
func (rc *RestoreConfig) SetDefaults() {
	if rc.MaxWait == 0 {
		rc.MaxWait = DefaultMaxWait
	}
	if rc.MaxDuration == 0 {
		rc.MaxDuration = DefaultMaxDuration
	}
	if rc.WipeScope == "" {
		rc.WipeScope = WipeScopeCatalog
	}
}

// LoadFromEnvironment loads restore configuration from environment variables
func (rc *RestoreConfig) LoadFromEnvironment() {
	if val := os.Getenv("SNAPSHOT_RESTORE_MAX_WAIT"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			rc.MaxWait = parsed
		}
	}

	if val := os.Getenv("SNAPSHOT_RESTORE_MAX_DURATION"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			rc.MaxDuration = parsed
		}
	}

	if val := os.Getenv("SNAPSHOT_RESTORE_WIPE_SCOPE"); val != "" {
		rc.WipeScope = WipeScope(strings.ToLower(val))
	}
}

// Options converts the configuration into per-call restore options.
func (rc RestoreConfig) Options() RestoreOptions {
	return RestoreOptions{
		WipeScope:   rc.WipeScope,
		MaxWait:     rc.MaxWait,
		MaxDuration: rc.MaxDuration,
	}
}

// Validate validates the SelectiveConfig
func (sc *SelectiveConfig) Validate() error {
	var errors ValidationErrors

	cat := catalog.Default()
	for _, name := range sc.DefaultTables {
		if !cat.Contains(name) {
			errors.Add("selective.default_tables", "unknown entity set", name)
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for selective snapshots
func (sc *SelectiveConfig) SetDefaults() {
	if len(sc.DefaultTables) == 0 {
		sc.DefaultTables = append([]string(nil), DefaultSelectiveTables...)
	}
}

// LoadFromEnvironment loads selective configuration from environment variables
func (sc *SelectiveConfig) LoadFromEnvironment() {
	if val := os.Getenv("SNAPSHOT_SELECTIVE_DEFAULT_TABLES"); val != "" {
		var tables []string
		for _, name := range strings.Split(val, ",") {
			if name = strings.TrimSpace(name); name != "" {
				tables = append(tables, name)
			}
		}
		sc.DefaultTables = tables
	}
}

// Validate validates the AuditConfig
func (ac *AuditConfig) Validate() error {
	return nil
}

// SetDefaults sets default values for the audit trail
func (ac *AuditConfig) SetDefaults() {
	if ac.Enabled && ac.File == "" {
		ac.File = "./logs/snapshot-audit.log"
	}
}

// LoadFromEnvironment loads audit configuration from environment variables
func (ac *AuditConfig) LoadFromEnvironment() {
	if val := os.Getenv("SNAPSHOT_AUDIT_ENABLED"); val != "" {
		ac.Enabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("SNAPSHOT_AUDIT_FILE"); val != "" {
		ac.File = val
	}
}
