package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
)

// Screenshot collection policies.
const (
	CollectNever   = "never"
	CollectFailure = "failure"
	CollectAlways  = "always"
)

// Config controls the E2E runner behavior.
type Config struct {
	ConfigPath string
	EnvFile    string

	RunID            string
	SpecDir          string
	FixturesPath     string
	ArtifactDir      string
	IncludeTags      []string
	ExcludeTags      []string
	Parallelism      int
	ProgressInterval time.Duration

	BaseURL         string
	Browser         string
	Headless        bool
	LaunchArgs      []string
	SlowMo          time.Duration
	InstallBrowsers bool
	UserAgent       string

	DefaultTimeout  time.Duration
	ActionTimeout   time.Duration
	CommitTimeout   time.Duration
	ReadyTimeout    time.Duration
	ReadinessSignal string
	ContextTimeout  time.Duration

	FailFast           bool
	Viewports          []string
	AxeScriptPath      string
	AxeScriptSHA256    string
	AssetCacheDir      string
	ArtifactCollection string
	ConsoleLimit       int

	LogFormat      string
	LogLevel       string
	MetricsEnabled bool
	MetricsPath    string
	GraphEnabled   bool

	ObjectStoreProvider           string
	ObjectStoreBucket             string
	ObjectStorePrefix             string
	ObjectStoreRegion             string
	ObjectStoreEndpoint           string
	ObjectStoreAccessKey          string
	ObjectStoreSecretKey          string
	ObjectStoreSessionToken       string
	ObjectStoreS3PathStyle        bool
	ObjectStoreInsecure           bool
	ObjectStoreGCPProject         string
	ObjectStoreGCPCredentialsFile string
	ObjectStoreGCPCredentialsJSON string
	ObjectStoreAzureAccount       string
	ObjectStoreAzureKey           string
	ObjectStoreAzureEndpoint      string
	ObjectStoreAzureSASToken      string

	OTelEnabled       bool
	OTelEndpoint      string
	OTelHeaders       string
	OTelInsecure      bool
	OTelServiceName   string
	OTelResourceAttrs string

	Neo4jEnabled  bool
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
}

// Load resolves configuration in increasing precedence: .env file, E2E_* environment,
// YAML config file, explicit command-line flags.
func Load(args []string) (*Config, error) {
	envFile := detectFlagValue(args, "env-file", os.Getenv("E2E_ENV_FILE"))
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := fromEnv()
	cfg.EnvFile = envFile
	cfg.ConfigPath = detectFlagValue(args, "config", os.Getenv("E2E_CONFIG"))
	if cfg.ConfigPath != "" {
		fileCfg, err := loadFileConfig(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", cfg.ConfigPath, err)
		}
		if err := applyFileConfig(cfg, fileCfg); err != nil {
			return nil, err
		}
	}

	defaultMetrics := filepath.Join(cfg.ArtifactDir, "metrics.prom")
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = defaultMetrics
	}

	flags := flag.NewFlagSet("e2e-runner", flag.ContinueOnError)
	cfg.bind(flags)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if cfg.MetricsPath == defaultMetrics {
		cfg.MetricsPath = filepath.Join(cfg.ArtifactDir, "metrics.prom")
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if !cfg.Neo4jEnabled && cfg.Neo4jURI != "" && os.Getenv("E2E_NEO4J_ENABLED") == "" {
		cfg.Neo4jEnabled = true
	}
	return cfg, cfg.Validate()
}

// Default returns the configuration with no environment, file or flags applied.
func Default() *Config {
	cwd, _ := os.Getwd()
	runID := time.Now().UTC().Format("20060102T150405Z")
	return &Config{
		RunID:              runID,
		SpecDir:            filepath.Join(cwd, "e2e", "specs"),
		FixturesPath:       filepath.Join(cwd, "e2e", "fixtures", "site.yaml"),
		ArtifactDir:        filepath.Join(cwd, "e2e", "artifacts", runID),
		Parallelism:        1,
		ProgressInterval:   30 * time.Second,
		BaseURL:            "http://localhost:3000",
		Browser:            browser.EngineChromium,
		Headless:           true,
		LaunchArgs:         append([]string(nil), browser.DefaultLaunchArgs...),
		DefaultTimeout:     5 * time.Minute,
		ActionTimeout:      5 * time.Second,
		CommitTimeout:      10 * time.Second,
		ReadyTimeout:       3 * time.Second,
		ReadinessSignal:    "domcontentloaded",
		ContextTimeout:     5 * time.Second,
		Viewports:          []string{"desktop"},
		ArtifactCollection: CollectFailure,
		ConsoleLimit:       1000,
		AssetCacheDir:      defaultAssetCacheDir(),
		LogFormat:          "json",
		LogLevel:           "info",
		MetricsEnabled:     true,
		GraphEnabled:       true,
		OTelInsecure:       true,
		OTelServiceName:    "sipincafe-site-e2e",
		Neo4jDatabase:      "neo4j",
	}
}

func defaultAssetCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "site-e2e")
	}
	return filepath.Join(os.TempDir(), "site-e2e")
}

func fromEnv() *Config {
	def := Default()
	cfg := &Config{}
	cfg.RunID = envOrDefault("E2E_RUN_ID", def.RunID)
	cfg.SpecDir = envOrDefault("E2E_SPEC_DIR", def.SpecDir)
	cfg.FixturesPath = envOrDefault("E2E_FIXTURES", def.FixturesPath)
	cfg.ArtifactDir = envOrDefault("E2E_ARTIFACT_DIR", filepath.Join(filepath.Dir(def.ArtifactDir), cfg.RunID))
	cfg.IncludeTags = splitCSV(envOrDefault("E2E_INCLUDE_TAGS", ""))
	cfg.ExcludeTags = splitCSV(envOrDefault("E2E_EXCLUDE_TAGS", ""))
	cfg.Parallelism = envOrDefaultInt("E2E_PARALLEL", def.Parallelism)
	cfg.ProgressInterval = envOrDefaultDuration("E2E_PROGRESS_INTERVAL", def.ProgressInterval)

	cfg.BaseURL = envOrDefault("E2E_BASE_URL", def.BaseURL)
	cfg.Browser = envOrDefault("E2E_BROWSER", def.Browser)
	cfg.Headless = envOrDefaultBool("E2E_HEADLESS", def.Headless)
	cfg.LaunchArgs = def.LaunchArgs
	if raw := envOrDefault("E2E_LAUNCH_ARGS", ""); raw != "" {
		cfg.LaunchArgs = splitCSV(raw)
	}
	cfg.SlowMo = envOrDefaultDuration("E2E_SLOW_MO", 0)
	cfg.InstallBrowsers = envOrDefaultBool("E2E_INSTALL_BROWSERS", false)
	cfg.UserAgent = envOrDefault("E2E_USER_AGENT", "")

	cfg.DefaultTimeout = envOrDefaultDuration("E2E_DEFAULT_TIMEOUT", def.DefaultTimeout)
	cfg.ActionTimeout = envOrDefaultDuration("E2E_ACTION_TIMEOUT", def.ActionTimeout)
	cfg.CommitTimeout = envOrDefaultDuration("E2E_COMMIT_TIMEOUT", def.CommitTimeout)
	cfg.ReadyTimeout = envOrDefaultDuration("E2E_READY_TIMEOUT", def.ReadyTimeout)
	cfg.ReadinessSignal = envOrDefault("E2E_READINESS_SIGNAL", def.ReadinessSignal)
	cfg.ContextTimeout = envOrDefaultDuration("E2E_CONTEXT_TIMEOUT", def.ContextTimeout)

	cfg.FailFast = envOrDefaultBool("E2E_FAIL_FAST", false)
	cfg.Viewports = def.Viewports
	if raw := envOrDefault("E2E_VIEWPORTS", ""); raw != "" {
		cfg.Viewports = splitCSV(raw)
	}
	cfg.AxeScriptPath = envOrDefault("E2E_AXE_SCRIPT", "")
	cfg.AxeScriptSHA256 = envOrDefault("E2E_AXE_SCRIPT_SHA256", "")
	cfg.AssetCacheDir = envOrDefault("E2E_ASSET_CACHE", def.AssetCacheDir)
	cfg.ArtifactCollection = envOrDefault("E2E_SCREENSHOTS", def.ArtifactCollection)
	cfg.ConsoleLimit = envOrDefaultInt("E2E_CONSOLE_LIMIT", def.ConsoleLimit)

	cfg.LogFormat = envOrDefault("E2E_LOG_FORMAT", def.LogFormat)
	cfg.LogLevel = envOrDefault("E2E_LOG_LEVEL", def.LogLevel)
	cfg.MetricsEnabled = envOrDefaultBool("E2E_METRICS", def.MetricsEnabled)
	cfg.MetricsPath = envOrDefault("E2E_METRICS_PATH", "")
	cfg.GraphEnabled = envOrDefaultBool("E2E_GRAPH", def.GraphEnabled)

	cfg.ObjectStoreProvider = envOrDefault("E2E_OBJECTSTORE_PROVIDER", "")
	cfg.ObjectStoreBucket = envOrDefault("E2E_OBJECTSTORE_BUCKET", "")
	cfg.ObjectStorePrefix = envOrDefault("E2E_OBJECTSTORE_PREFIX", "")
	cfg.ObjectStoreRegion = envOrDefault("E2E_OBJECTSTORE_REGION", "")
	cfg.ObjectStoreEndpoint = envOrDefault("E2E_OBJECTSTORE_ENDPOINT", "")
	cfg.ObjectStoreAccessKey = envOrDefault("E2E_OBJECTSTORE_ACCESS_KEY", "")
	cfg.ObjectStoreSecretKey = envOrDefault("E2E_OBJECTSTORE_SECRET_KEY", "")
	cfg.ObjectStoreSessionToken = envOrDefault("E2E_OBJECTSTORE_SESSION_TOKEN", "")
	cfg.ObjectStoreS3PathStyle = envOrDefaultBool("E2E_OBJECTSTORE_S3_PATH_STYLE", false)
	cfg.ObjectStoreInsecure = envOrDefaultBool("E2E_OBJECTSTORE_INSECURE", false)
	cfg.ObjectStoreGCPProject = envOrDefault("E2E_OBJECTSTORE_GCP_PROJECT", "")
	cfg.ObjectStoreGCPCredentialsFile = envOrDefault("E2E_OBJECTSTORE_GCP_CREDENTIALS_FILE", "")
	cfg.ObjectStoreGCPCredentialsJSON = envOrDefault("E2E_OBJECTSTORE_GCP_CREDENTIALS_JSON", "")
	cfg.ObjectStoreAzureAccount = envOrDefault("E2E_OBJECTSTORE_AZURE_ACCOUNT", "")
	cfg.ObjectStoreAzureKey = envOrDefault("E2E_OBJECTSTORE_AZURE_KEY", "")
	cfg.ObjectStoreAzureEndpoint = envOrDefault("E2E_OBJECTSTORE_AZURE_ENDPOINT", "")
	cfg.ObjectStoreAzureSASToken = envOrDefault("E2E_OBJECTSTORE_AZURE_SAS_TOKEN", "")

	cfg.OTelEnabled = envOrDefaultBool("E2E_OTEL_ENABLED", false)
	cfg.OTelEndpoint = envOrDefault("E2E_OTEL_ENDPOINT", "")
	cfg.OTelHeaders = envOrDefault("E2E_OTEL_HEADERS", "")
	cfg.OTelInsecure = envOrDefaultBool("E2E_OTEL_INSECURE", def.OTelInsecure)
	cfg.OTelServiceName = envOrDefault("E2E_OTEL_SERVICE_NAME", def.OTelServiceName)
	cfg.OTelResourceAttrs = envOrDefault("E2E_OTEL_RESOURCE_ATTRS", "")

	cfg.Neo4jEnabled = envOrDefaultBool("E2E_NEO4J_ENABLED", false)
	cfg.Neo4jURI = envOrDefault("E2E_NEO4J_URI", "")
	cfg.Neo4jUser = envOrDefault("E2E_NEO4J_USER", "")
	cfg.Neo4jPassword = envOrDefault("E2E_NEO4J_PASSWORD", "")
	cfg.Neo4jDatabase = envOrDefault("E2E_NEO4J_DATABASE", def.Neo4jDatabase)
	return cfg
}

// bind registers every flag with the already resolved value as its default.
func (cfg *Config) bind(flags *flag.FlagSet) {
	flags.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "path to YAML config file")
	flags.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "path to .env file")
	flags.StringVar(&cfg.RunID, "run-id", cfg.RunID, "unique run identifier")
	flags.StringVar(&cfg.SpecDir, "spec-dir", cfg.SpecDir, "directory containing scenario specs")
	flags.StringVar(&cfg.FixturesPath, "fixtures", cfg.FixturesPath, "path to content fixtures YAML")
	flags.StringVar(&cfg.ArtifactDir, "artifact-dir", cfg.ArtifactDir, "directory for artifacts")
	flags.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "max parallel scenarios")
	flags.DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "interval between progress log lines (0 disables)")
	flags.Var(newCSVValue(&cfg.IncludeTags), "include-tags", "comma-separated tag allowlist")
	flags.Var(newCSVValue(&cfg.ExcludeTags), "exclude-tags", "comma-separated tag denylist")

	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "base URL of the site under test")
	flags.StringVar(&cfg.Browser, "browser", cfg.Browser, "browser engine: chromium|firefox|webkit")
	flags.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run the browser headless")
	flags.Var(newCSVValue(&cfg.LaunchArgs), "launch-args", "comma-separated browser launch arguments")
	flags.DurationVar(&cfg.SlowMo, "slow-mo", cfg.SlowMo, "delay between browser operations")
	flags.BoolVar(&cfg.InstallBrowsers, "install-browsers", cfg.InstallBrowsers, "download the automation driver and browsers before running")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "user agent override")

	flags.DurationVar(&cfg.DefaultTimeout, "default-timeout", cfg.DefaultTimeout, "default scenario timeout")
	flags.DurationVar(&cfg.ActionTimeout, "action-timeout", cfg.ActionTimeout, "interaction actionability timeout")
	flags.DurationVar(&cfg.CommitTimeout, "commit-timeout", cfg.CommitTimeout, "navigation commit timeout")
	flags.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "readiness wait timeout")
	flags.StringVar(&cfg.ReadinessSignal, "readiness", cfg.ReadinessSignal, "default readiness signal: domcontentloaded|load|networkidle")
	flags.DurationVar(&cfg.ContextTimeout, "context-timeout", cfg.ContextTimeout, "browser context default operation timeout")

	flags.BoolVar(&cfg.FailFast, "fail-fast", cfg.FailFast, "stop a scenario at its first failed assertion")
	flags.Var(newCSVValue(&cfg.Viewports), "viewports", "default viewport profiles (mobile,tablet,desktop,all)")
	flags.StringVar(&cfg.AxeScriptPath, "axe-script", cfg.AxeScriptPath, "axe-core script injected when the page lacks it: local path or s3://, gs://, az://, minio:// reference")
	flags.StringVar(&cfg.AxeScriptSHA256, "axe-script-sha256", cfg.AxeScriptSHA256, "expected SHA-256 of a fetched axe-core script")
	flags.StringVar(&cfg.AssetCacheDir, "asset-cache", cfg.AssetCacheDir, "local cache for fetched harness assets")
	flags.StringVar(&cfg.ArtifactCollection, "screenshots", cfg.ArtifactCollection, "screenshot collection: never|failure|always")
	flags.IntVar(&cfg.ConsoleLimit, "console-limit", cfg.ConsoleLimit, "max console entries kept per scenario")

	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json|console")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	flags.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "enable metrics output")
	flags.StringVar(&cfg.MetricsPath, "metrics-path", cfg.MetricsPath, "metrics output path")
	flags.BoolVar(&cfg.GraphEnabled, "graph", cfg.GraphEnabled, "enable results graph output")

	flags.StringVar(&cfg.ObjectStoreProvider, "objectstore-provider", cfg.ObjectStoreProvider, "artifact upload provider: s3|gcs|azure|minio")
	flags.StringVar(&cfg.ObjectStoreBucket, "objectstore-bucket", cfg.ObjectStoreBucket, "object store bucket/container")
	flags.StringVar(&cfg.ObjectStorePrefix, "objectstore-prefix", cfg.ObjectStorePrefix, "object store prefix")
	flags.StringVar(&cfg.ObjectStoreRegion, "objectstore-region", cfg.ObjectStoreRegion, "object store region")
	flags.StringVar(&cfg.ObjectStoreEndpoint, "objectstore-endpoint", cfg.ObjectStoreEndpoint, "object store endpoint override")
	flags.StringVar(&cfg.ObjectStoreAccessKey, "objectstore-access-key", cfg.ObjectStoreAccessKey, "object store access key")
	flags.StringVar(&cfg.ObjectStoreSecretKey, "objectstore-secret-key", cfg.ObjectStoreSecretKey, "object store secret key")
	flags.StringVar(&cfg.ObjectStoreSessionToken, "objectstore-session-token", cfg.ObjectStoreSessionToken, "object store session token")
	flags.BoolVar(&cfg.ObjectStoreS3PathStyle, "objectstore-s3-path-style", cfg.ObjectStoreS3PathStyle, "use S3 path-style addressing")
	flags.BoolVar(&cfg.ObjectStoreInsecure, "objectstore-insecure", cfg.ObjectStoreInsecure, "use plain HTTP for the minio endpoint")
	flags.StringVar(&cfg.ObjectStoreGCPProject, "objectstore-gcp-project", cfg.ObjectStoreGCPProject, "GCP project ID")
	flags.StringVar(&cfg.ObjectStoreGCPCredentialsFile, "objectstore-gcp-credentials-file", cfg.ObjectStoreGCPCredentialsFile, "GCP credentials file path")
	flags.StringVar(&cfg.ObjectStoreGCPCredentialsJSON, "objectstore-gcp-credentials-json", cfg.ObjectStoreGCPCredentialsJSON, "GCP credentials JSON")
	flags.StringVar(&cfg.ObjectStoreAzureAccount, "objectstore-azure-account", cfg.ObjectStoreAzureAccount, "Azure storage account name")
	flags.StringVar(&cfg.ObjectStoreAzureKey, "objectstore-azure-key", cfg.ObjectStoreAzureKey, "Azure storage account key")
	flags.StringVar(&cfg.ObjectStoreAzureEndpoint, "objectstore-azure-endpoint", cfg.ObjectStoreAzureEndpoint, "Azure blob endpoint override")
	flags.StringVar(&cfg.ObjectStoreAzureSASToken, "objectstore-azure-sas-token", cfg.ObjectStoreAzureSASToken, "Azure SAS token")

	flags.BoolVar(&cfg.OTelEnabled, "otel", cfg.OTelEnabled, "enable OpenTelemetry exporters")
	flags.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP endpoint (host:port)")
	flags.StringVar(&cfg.OTelHeaders, "otel-headers", cfg.OTelHeaders, "OTLP headers as comma-separated key=value pairs")
	flags.BoolVar(&cfg.OTelInsecure, "otel-insecure", cfg.OTelInsecure, "disable TLS for OTLP endpoint")
	flags.StringVar(&cfg.OTelServiceName, "otel-service-name", cfg.OTelServiceName, "OTel service name")
	flags.StringVar(&cfg.OTelResourceAttrs, "otel-resource-attrs", cfg.OTelResourceAttrs, "extra OTel resource attributes key=value pairs")

	flags.BoolVar(&cfg.Neo4jEnabled, "neo4j", cfg.Neo4jEnabled, "enable Neo4j export")
	flags.StringVar(&cfg.Neo4jURI, "neo4j-uri", cfg.Neo4jURI, "Neo4j connection URI")
	flags.StringVar(&cfg.Neo4jUser, "neo4j-user", cfg.Neo4jUser, "Neo4j username")
	flags.StringVar(&cfg.Neo4jPassword, "neo4j-password", cfg.Neo4jPassword, "Neo4j password")
	flags.StringVar(&cfg.Neo4jDatabase, "neo4j-database", cfg.Neo4jDatabase, "Neo4j database name")
}

// Validate rejects settings the runner cannot act on.
func (cfg *Config) Validate() error {
	var errs []error
	switch strings.ToLower(cfg.Browser) {
	case browser.EngineChromium, browser.EngineFirefox, browser.EngineWebKit:
	default:
		errs = append(errs, fmt.Errorf("unsupported browser %q", cfg.Browser))
	}
	switch cfg.ArtifactCollection {
	case CollectNever, CollectFailure, CollectAlways:
	default:
		errs = append(errs, fmt.Errorf("invalid screenshots policy %q (never|failure|always)", cfg.ArtifactCollection))
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	for name, d := range map[string]time.Duration{
		"action-timeout": cfg.ActionTimeout,
		"commit-timeout": cfg.CommitTimeout,
		"ready-timeout":  cfg.ReadyTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(expandPath(path)); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == ".env" {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed := 0
	_, err := fmt.Sscanf(value, "%d", &parsed)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return duration
}

func splitCSV(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// csvValue is a flag.Value over a string slice.
type csvValue struct {
	target *[]string
}

func newCSVValue(target *[]string) *csvValue { return &csvValue{target: target} }

func (v *csvValue) String() string {
	if v == nil || v.target == nil {
		return ""
	}
	return strings.Join(*v.target, ",")
}

func (v *csvValue) Set(value string) error {
	*v.target = splitCSV(value)
	return nil
}
