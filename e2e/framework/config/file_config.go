package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the structured YAML configuration.
type FileConfig struct {
	Run         *RunFileConfig         `yaml:"run"`
	Site        *SiteFileConfig        `yaml:"site"`
	Browser     *BrowserFileConfig     `yaml:"browser"`
	Timeouts    *TimeoutsFileConfig    `yaml:"timeouts"`
	Logging     *LoggingFileConfig     `yaml:"logging"`
	Metrics     *MetricsFileConfig     `yaml:"metrics"`
	Graph       *GraphFileConfig       `yaml:"graph"`
	Objectstore *ObjectstoreFileConfig `yaml:"objectstore"`
	OTel        *OTelFileConfig        `yaml:"otel"`
	Neo4j       *Neo4jFileConfig       `yaml:"neo4j"`
}

type RunFileConfig struct {
	ID               *string     `yaml:"id"`
	SpecDir          *string     `yaml:"spec_dir"`
	Fixtures         *string     `yaml:"fixtures"`
	ArtifactDir      *string     `yaml:"artifact_dir"`
	IncludeTags      *StringList `yaml:"include_tags"`
	ExcludeTags      *StringList `yaml:"exclude_tags"`
	Parallel         *int        `yaml:"parallel"`
	ProgressInterval *string     `yaml:"progress_interval"`
	FailFast         *bool       `yaml:"fail_fast"`
	Screenshots      *string     `yaml:"screenshots"`
	ConsoleLimit     *int        `yaml:"console_limit"`
}

type SiteFileConfig struct {
	BaseURL   *string     `yaml:"base_url"`
	Viewports *StringList `yaml:"viewports"`
	AxeScript *string     `yaml:"axe_script"`
	AxeSHA256 *string     `yaml:"axe_script_sha256"`
	AssetDir  *string     `yaml:"asset_cache"`
}

type BrowserFileConfig struct {
	Engine     *string     `yaml:"engine"`
	Headless   *bool       `yaml:"headless"`
	LaunchArgs *StringList `yaml:"launch_args"`
	SlowMo     *string     `yaml:"slow_mo"`
	Install    *bool       `yaml:"install"`
	UserAgent  *string     `yaml:"user_agent"`
}

type TimeoutsFileConfig struct {
	Scenario  *string `yaml:"scenario"`
	Action    *string `yaml:"action"`
	Commit    *string `yaml:"commit"`
	Ready     *string `yaml:"ready"`
	Readiness *string `yaml:"readiness"`
	Context   *string `yaml:"context"`
}

type LoggingFileConfig struct {
	Format *string `yaml:"format"`
	Level  *string `yaml:"level"`
}

type MetricsFileConfig struct {
	Enabled *bool   `yaml:"enabled"`
	Path    *string `yaml:"path"`
}

type GraphFileConfig struct {
	Enabled *bool `yaml:"enabled"`
}

type ObjectstoreFileConfig struct {
	Provider           *string `yaml:"provider"`
	Bucket             *string `yaml:"bucket"`
	Prefix             *string `yaml:"prefix"`
	Region             *string `yaml:"region"`
	Endpoint           *string `yaml:"endpoint"`
	AccessKey          *string `yaml:"access_key"`
	SecretKey          *string `yaml:"secret_key"`
	SessionToken       *string `yaml:"session_token"`
	S3PathStyle        *bool   `yaml:"s3_path_style"`
	Insecure           *bool   `yaml:"insecure"`
	GCPProject         *string `yaml:"gcp_project"`
	GCPCredentialsFile *string `yaml:"gcp_credentials_file"`
	GCPCredentialsJSON *string `yaml:"gcp_credentials_json"`
	AzureAccount       *string `yaml:"azure_account"`
	AzureKey           *string `yaml:"azure_key"`
	AzureEndpoint      *string `yaml:"azure_endpoint"`
	AzureSASToken      *string `yaml:"azure_sas_token"`
}

type OTelFileConfig struct {
	Enabled       *bool   `yaml:"enabled"`
	Endpoint      *string `yaml:"endpoint"`
	Headers       *string `yaml:"headers"`
	Insecure      *bool   `yaml:"insecure"`
	ServiceName   *string `yaml:"service_name"`
	ResourceAttrs *string `yaml:"resource_attrs"`
}

type Neo4jFileConfig struct {
	Enabled  *bool   `yaml:"enabled"`
	URI      *string `yaml:"uri"`
	User     *string `yaml:"user"`
	Password *string `yaml:"password"`
	Database *string `yaml:"database"`
}

// StringList supports string or list YAML values.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = splitCSV(value.Value)
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, node := range value.Content {
			if node.Kind != yaml.ScalarNode {
				return fmt.Errorf("string list must contain only scalars")
			}
			item := strings.TrimSpace(node.Value)
			if item != "" {
				out = append(out, item)
			}
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("string list must be a string or list")
	}
}

// detectFlagValue finds -name/--name in args ahead of flag parsing, falling back to envValue.
func detectFlagValue(args []string, name, envValue string) string {
	value := strings.TrimSpace(envValue)
	for i := 0; i < len(args); i++ {
		arg := strings.TrimSpace(args[i])
		if arg == "-"+name || arg == "--"+name {
			if i+1 < len(args) {
				value = strings.TrimSpace(args[i+1])
			}
			continue
		}
		if strings.HasPrefix(arg, "-"+name+"=") || strings.HasPrefix(arg, "--"+name+"=") {
			parts := strings.SplitN(arg, "=", 2)
			value = strings.TrimSpace(parts[1])
		}
	}
	return value
}

func loadFileConfig(path string) (*FileConfig, error) {
	expanded := expandPath(path)
	if expanded == "" {
		return nil, nil
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setPath(dst *string, src *string) {
	if src != nil {
		*dst = expandPath(*src)
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setList(dst *[]string, src *StringList) {
	if src != nil {
		*dst = append([]string(nil), (*src)...)
	}
}

func setDuration(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}
	duration, err := time.ParseDuration(strings.TrimSpace(*src))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = duration
	return nil
}

func applyFileConfig(cfg *Config, fileCfg *FileConfig) error {
	if cfg == nil || fileCfg == nil {
		return nil
	}
	if run := fileCfg.Run; run != nil {
		setString(&cfg.RunID, run.ID)
		setPath(&cfg.SpecDir, run.SpecDir)
		setPath(&cfg.FixturesPath, run.Fixtures)
		setPath(&cfg.ArtifactDir, run.ArtifactDir)
		setList(&cfg.IncludeTags, run.IncludeTags)
		setList(&cfg.ExcludeTags, run.ExcludeTags)
		setInt(&cfg.Parallelism, run.Parallel)
		if err := setDuration(&cfg.ProgressInterval, run.ProgressInterval, "run.progress_interval"); err != nil {
			return err
		}
		setBool(&cfg.FailFast, run.FailFast)
		setString(&cfg.ArtifactCollection, run.Screenshots)
		setInt(&cfg.ConsoleLimit, run.ConsoleLimit)
	}
	if site := fileCfg.Site; site != nil {
		setString(&cfg.BaseURL, site.BaseURL)
		setList(&cfg.Viewports, site.Viewports)
		setPath(&cfg.AxeScriptPath, site.AxeScript)
		setString(&cfg.AxeScriptSHA256, site.AxeSHA256)
		setPath(&cfg.AssetCacheDir, site.AssetDir)
	}
	if b := fileCfg.Browser; b != nil {
		setString(&cfg.Browser, b.Engine)
		setBool(&cfg.Headless, b.Headless)
		setList(&cfg.LaunchArgs, b.LaunchArgs)
		if err := setDuration(&cfg.SlowMo, b.SlowMo, "browser.slow_mo"); err != nil {
			return err
		}
		setBool(&cfg.InstallBrowsers, b.Install)
		setString(&cfg.UserAgent, b.UserAgent)
	}
	if t := fileCfg.Timeouts; t != nil {
		for _, d := range []struct {
			dst *time.Duration
			src *string
			key string
		}{
			{&cfg.DefaultTimeout, t.Scenario, "timeouts.scenario"},
			{&cfg.ActionTimeout, t.Action, "timeouts.action"},
			{&cfg.CommitTimeout, t.Commit, "timeouts.commit"},
			{&cfg.ReadyTimeout, t.Ready, "timeouts.ready"},
			{&cfg.ContextTimeout, t.Context, "timeouts.context"},
		} {
			if err := setDuration(d.dst, d.src, d.key); err != nil {
				return err
			}
		}
		setString(&cfg.ReadinessSignal, t.Readiness)
	}
	if logging := fileCfg.Logging; logging != nil {
		setString(&cfg.LogFormat, logging.Format)
		setString(&cfg.LogLevel, logging.Level)
	}
	if metrics := fileCfg.Metrics; metrics != nil {
		setBool(&cfg.MetricsEnabled, metrics.Enabled)
		setPath(&cfg.MetricsPath, metrics.Path)
	}
	if graph := fileCfg.Graph; graph != nil {
		setBool(&cfg.GraphEnabled, graph.Enabled)
	}
	if obj := fileCfg.Objectstore; obj != nil {
		setString(&cfg.ObjectStoreProvider, obj.Provider)
		setString(&cfg.ObjectStoreBucket, obj.Bucket)
		setString(&cfg.ObjectStorePrefix, obj.Prefix)
		setString(&cfg.ObjectStoreRegion, obj.Region)
		setString(&cfg.ObjectStoreEndpoint, obj.Endpoint)
		setString(&cfg.ObjectStoreAccessKey, obj.AccessKey)
		setString(&cfg.ObjectStoreSecretKey, obj.SecretKey)
		setString(&cfg.ObjectStoreSessionToken, obj.SessionToken)
		setBool(&cfg.ObjectStoreS3PathStyle, obj.S3PathStyle)
		setBool(&cfg.ObjectStoreInsecure, obj.Insecure)
		setString(&cfg.ObjectStoreGCPProject, obj.GCPProject)
		setPath(&cfg.ObjectStoreGCPCredentialsFile, obj.GCPCredentialsFile)
		setString(&cfg.ObjectStoreGCPCredentialsJSON, obj.GCPCredentialsJSON)
		setString(&cfg.ObjectStoreAzureAccount, obj.AzureAccount)
		setString(&cfg.ObjectStoreAzureKey, obj.AzureKey)
		setString(&cfg.ObjectStoreAzureEndpoint, obj.AzureEndpoint)
		setString(&cfg.ObjectStoreAzureSASToken, obj.AzureSASToken)
	}
	if otel := fileCfg.OTel; otel != nil {
		setBool(&cfg.OTelEnabled, otel.Enabled)
		setString(&cfg.OTelEndpoint, otel.Endpoint)
		setString(&cfg.OTelHeaders, otel.Headers)
		setBool(&cfg.OTelInsecure, otel.Insecure)
		setString(&cfg.OTelServiceName, otel.ServiceName)
		setString(&cfg.OTelResourceAttrs, otel.ResourceAttrs)
	}
	if neo4j := fileCfg.Neo4j; neo4j != nil {
		setBool(&cfg.Neo4jEnabled, neo4j.Enabled)
		setString(&cfg.Neo4jURI, neo4j.URI)
		setString(&cfg.Neo4jUser, neo4j.User)
		setString(&cfg.Neo4jPassword, neo4j.Password)
		setString(&cfg.Neo4jDatabase, neo4j.Database)
	}
	return nil
}

func expandPath(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return trimmed
	}
	expanded := os.ExpandEnv(trimmed)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	return expanded
}
