package digotest_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/centraunit/digo/digotest"
	"github.com/centraunit/digo/naming"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) SetupTest() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, digotest.EnvPrefix) {
			// Setenv restores the original value on cleanup.
			s.T().Setenv(key, "")
			s.Require().NoError(os.Unsetenv(key))
		}
	}
}

func (s *ConfigTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := digotest.LoadConfig()
	s.Require().NoError(err)
	s.Equal(digotest.DefaultConfig(), cfg)
	s.Equal(naming.BeanRegistryPath, cfg.LookupPath)
	s.True(cfg.FailOnTeardownError)

	logger, err := cfg.NewLogger()
	s.NoError(err)
	s.NotNil(logger)
}

func (s *ConfigTestSuite) TestYAMLFile() {
	path := s.writeFile("digotest.yaml", `
log_level: debug
log_encoding: json
lookup_path: digo:comp/Registry
fail_on_teardown_error: false
`)
	s.T().Setenv(digotest.ConfigFileEnv, path)

	cfg, err := digotest.LoadConfig()
	s.Require().NoError(err)
	s.Equal("debug", cfg.LogLevel)
	s.Equal("json", cfg.LogEncoding)
	s.Equal("digo:comp/Registry", cfg.LookupPath)
	s.False(cfg.FailOnTeardownError)
}

func (s *ConfigTestSuite) TestEnvironmentOverrides() {
	path := s.writeFile("digotest.yaml", "log_level: warn\n")
	envFile := s.writeFile("digotest.env", "DIGOTEST_LOG_LEVEL=error\nDIGOTEST_DISABLE_LOOKUP=true\n")
	s.T().Setenv(digotest.ConfigFileEnv, path)
	s.T().Setenv(digotest.EnvFileEnv, envFile)

	cfg, err := digotest.LoadConfig()
	s.Require().NoError(err)
	s.Equal("error", cfg.LogLevel, "the env file overrides the YAML file")
	s.True(cfg.DisableLookup)

	s.T().Setenv("DIGOTEST_LOG_LEVEL", "DEBUG")
	cfg, err = digotest.LoadConfig()
	s.Require().NoError(err)
	s.Equal("debug", cfg.LogLevel, "the process environment overrides the env file")
}

func (s *ConfigTestSuite) TestInvalid() {
	s.Run("BadBoolean", func() {
		s.T().Setenv("DIGOTEST_FAIL_ON_TEARDOWN_ERROR", "maybe")
		_, err := digotest.LoadConfig()
		s.ErrorContains(err, "DIGOTEST_FAIL_ON_TEARDOWN_ERROR")
	})

	s.Run("BadLevel", func() {
		s.T().Setenv("DIGOTEST_LOG_LEVEL", "loud")
		_, err := digotest.LoadConfig()
		s.ErrorContains(err, "loglevel must be one of")
	})

	s.Run("MissingLookupPath", func() {
		cfg := digotest.DefaultConfig()
		cfg.LookupPath = ""
		s.ErrorContains(cfg.Validate(), "lookuppath is required")
		cfg.DisableLookup = true
		s.NoError(cfg.Validate())
	})

	s.Run("MissingFile", func() {
		s.T().Setenv(digotest.ConfigFileEnv, filepath.Join(s.T().TempDir(), "missing.yaml"))
		_, err := digotest.LoadConfig()
		s.ErrorContains(err, "error reading config")
	})

	s.Run("MalformedFile", func() {
		s.T().Setenv(digotest.ConfigFileEnv, s.writeFile("bad.yaml", "log_level: [debug"))
		_, err := digotest.LoadConfig()
		s.ErrorContains(err, "error parsing config")
	})
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
