package cli

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds settings read from gaiaq.yaml and GAIAQ_* environment
// variables. Flags given explicitly on the command line win over both.
type Config struct {
	DB            string    `yaml:"db" mapstructure:"db"`
	SpatialiteLib string    `yaml:"spatialite_lib" mapstructure:"spatialite_lib"`
	Log           LogConfig `yaml:"log" mapstructure:"log"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// LoadConfig reads the optional gaiaq.yaml from the working directory and
// overlays GAIAQ_* environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("gaiaq")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GAIAQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register the keys so AutomaticEnv reaches them during
	// Unmarshal.
	v.SetDefault("db", "")
	v.SetDefault("spatialite_lib", "")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "cli: read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "cli: unmarshal config")
	}
	return &cfg, nil
}

// InitLogger installs the global zap logger. Verbose mode switches to the
// console encoder at debug level; otherwise the production config runs at
// the configured level. Every invocation gets its own run id field.
func InitLogger(verbose bool, level string) error {
	var zapCfg zap.Config
	if verbose {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level.SetLevel(zapcore.DebugLevel)
	} else {
		zapCfg = zap.NewProductionConfig()
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return eris.Wrap(err, "cli: parse log level")
		}
		zapCfg.Level.SetLevel(lvl)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "cli: build logger")
	}
	zap.ReplaceGlobals(logger.With(zap.String("run_id", uuid.NewString())))

	return nil
}
