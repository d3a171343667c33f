package digotest

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/centraunit/digo/naming"
)

// Environment variables read by LoadConfig.
const (
	EnvPrefix = "DIGOTEST_"
	// ConfigFileEnv names a YAML file to load before the environment is applied.
	ConfigFileEnv = EnvPrefix + "CONFIG"
	// EnvFileEnv names a dotenv file whose DIGOTEST_ variables apply under the
	// process environment.
	EnvFileEnv = EnvPrefix + "ENV_FILE"
)

// Config configures the harness.
type Config struct {
	LogLevel            string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogEncoding         string `yaml:"log_encoding" validate:"oneof=console json"`
	LookupPath          string `yaml:"lookup_path" validate:"required_unless=DisableLookup true"`
	DisableLookup       bool   `yaml:"disable_lookup"`
	FailOnTeardownError bool   `yaml:"fail_on_teardown_error"`
}

var validate = validator.New()

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		LogLevel:            "info",
		LogEncoding:         "console",
		LookupPath:          naming.BeanRegistryPath,
		FailOnTeardownError: true,
	}
}

// LoadConfig layers the YAML file named by DIGOTEST_CONFIG, the dotenv file
// named by DIGOTEST_ENV_FILE and the process environment over the defaults,
// then validates the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	env := map[string]string{}
	if path := os.Getenv(EnvFileEnv); path != "" {
		vars, err := godotenv.Read(path)
		if err != nil {
			return Config{}, fmt.Errorf("error loading env file %s: %w", path, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env map[string]string) error {
	if v, ok := env[EnvPrefix+"LOG_LEVEL"]; ok {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := env[EnvPrefix+"LOG_ENCODING"]; ok {
		c.LogEncoding = strings.ToLower(v)
	}
	if v, ok := env[EnvPrefix+"LOOKUP_PATH"]; ok {
		c.LookupPath = v
	}
	for name, target := range map[string]*bool{
		"DISABLE_LOOKUP":         &c.DisableLookup,
		"FAIL_ON_TEARDOWN_ERROR": &c.FailOnTeardownError,
	} {
		v, ok := env[EnvPrefix+name]
		if !ok {
			continue
		}
		switch strings.ToLower(v) {
		case "true", "1":
			*target = true
		case "false", "0":
			*target = false
		default:
			return fmt.Errorf("invalid boolean value for %s%s: %q", EnvPrefix, name, v)
		}
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return fmt.Errorf("invalid harness config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "required_unless":
		return fmt.Sprintf("%s is required unless lookup is disabled", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// NewLogger builds the harness logger.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if c.LogEncoding == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = c.LogEncoding
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// ManagerOptions returns the manager options the configuration implies.
func (c Config) ManagerOptions() []ManagerOption {
	if c.DisableLookup {
		return []ManagerOption{WithoutLookup()}
	}
	return []ManagerOption{WithLookupPath(c.LookupPath)}
}
