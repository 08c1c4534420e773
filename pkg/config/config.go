// Package config loads the run configuration of the rforest tools from a
// YAML, TOML or JSON file with RFOREST_ environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/rforest/pkg/errors"
	"github.com/YuminosukeSato/rforest/sklearn/ensemble"
)

// EnvPrefix prefixes every environment override, e.g. RFOREST_FOREST_N_JOBS.
const EnvPrefix = "RFOREST"

// Config is the top-level configuration.
type Config struct {
	Forest  ForestConfig  `mapstructure:"forest"`
	Data    DataConfig    `mapstructure:"data"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Report  ReportConfig  `mapstructure:"report"`
}

// ForestConfig mirrors the RandomForestClassifier hyperparameters.
type ForestConfig struct {
	NEstimators         int           `mapstructure:"n_estimators"          validate:"min=1"`
	MaxDepth            int           `mapstructure:"max_depth"             validate:"min=0"`
	MaxFeatures         string        `mapstructure:"max_features"`
	NJobs               int           `mapstructure:"n_jobs"                validate:"min=1"`
	RandomState         *int64        `mapstructure:"random_state"`
	Bootstrap           bool          `mapstructure:"bootstrap"`
	BootstrapSampleSize int           `mapstructure:"bootstrap_sample_size" validate:"min=0"`
	FailureTolerance    float64       `mapstructure:"failure_tolerance"     validate:"gte=0,lte=1"`
	TaskTimeout         time.Duration `mapstructure:"task_timeout"          validate:"gte=0"`
	Criterion           string        `mapstructure:"criterion"             validate:"oneof=gini entropy"`
	MinSamplesSplit     int           `mapstructure:"min_samples_split"     validate:"min=2"`
	MinSamplesLeaf      int           `mapstructure:"min_samples_leaf"      validate:"min=1"`
	OOBScore            bool          `mapstructure:"oob_score"`
}

// DataConfig selects the training data. An empty Path uses the synthetic
// generator.
type DataConfig struct {
	Path         string          `mapstructure:"path"`
	LabelColumn  string          `mapstructure:"label_column"`
	TestFraction float64         `mapstructure:"test_fraction" validate:"gte=0,lt=1"`
	SplitSeed    int64           `mapstructure:"split_seed"`
	Synthetic    SyntheticConfig `mapstructure:"synthetic"`
}

// SyntheticConfig parameterises dataset.MakeClassification.
type SyntheticConfig struct {
	Samples     int     `mapstructure:"samples"     validate:"min=2"`
	Features    int     `mapstructure:"features"    validate:"min=1"`
	Informative int     `mapstructure:"informative" validate:"min=1,ltefield=Features"`
	Classes     int     `mapstructure:"classes"     validate:"min=2"`
	ClassSep    float64 `mapstructure:"class_sep"   validate:"gt=0"`
	FlipY       float64 `mapstructure:"flip_y"      validate:"gte=0,lte=1"`
	Seed        int64   `mapstructure:"seed"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// ReportConfig configures the optional artefacts of a run.
type ReportConfig struct {
	ImportancePlot string `mapstructure:"importance_plot"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("forest.n_estimators", 10)
	v.SetDefault("forest.max_depth", 0)
	v.SetDefault("forest.max_features", "all")
	v.SetDefault("forest.n_jobs", 1)
	v.SetDefault("forest.bootstrap", true)
	v.SetDefault("forest.bootstrap_sample_size", 0)
	v.SetDefault("forest.failure_tolerance", 0.0)
	v.SetDefault("forest.task_timeout", time.Duration(0))
	v.SetDefault("forest.criterion", "gini")
	v.SetDefault("forest.min_samples_split", 2)
	v.SetDefault("forest.min_samples_leaf", 1)
	v.SetDefault("forest.oob_score", false)

	v.SetDefault("data.path", "")
	v.SetDefault("data.label_column", "label")
	v.SetDefault("data.test_fraction", 0.25)
	v.SetDefault("data.split_seed", 0)
	v.SetDefault("data.synthetic.samples", 100)
	v.SetDefault("data.synthetic.features", 4)
	v.SetDefault("data.synthetic.informative", 2)
	v.SetDefault("data.synthetic.classes", 2)
	v.SetDefault("data.synthetic.class_sep", 1.0)
	v.SetDefault("data.synthetic.flip_y", 0.0)
	v.SetDefault("data.synthetic.seed", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "rforest")
	v.SetDefault("report.importance_plot", "")
}

// Load reads the configuration. path may be empty, in which case only the
// defaults and the environment apply. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// random_state has no default, so AutomaticEnv alone would not see it.
	if err := v.BindEnv("forest.random_state"); err != nil {
		return nil, errors.Wrap(err, "bind random_state")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the field constraints and that max_features parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	if _, err := ensemble.ParseMaxFeatures(c.Forest.MaxFeatures); err != nil {
		return err
	}
	return nil
}

// ForestOptions converts the forest section into constructor options.
func (c *Config) ForestOptions() ([]ensemble.Option, error) {
	f := c.Forest
	mf, err := ensemble.ParseMaxFeatures(f.MaxFeatures)
	if err != nil {
		return nil, err
	}
	opts := []ensemble.Option{
		ensemble.WithNEstimators(f.NEstimators),
		ensemble.WithMaxDepth(f.MaxDepth),
		ensemble.WithMaxFeatures(mf),
		ensemble.WithNJobs(f.NJobs),
		ensemble.WithBootstrap(f.Bootstrap),
		ensemble.WithBootstrapSampleSize(f.BootstrapSampleSize),
		ensemble.WithFailureTolerance(f.FailureTolerance),
		ensemble.WithTaskTimeout(f.TaskTimeout),
		ensemble.WithCriterion(f.Criterion),
		ensemble.WithMinSamplesSplit(f.MinSamplesSplit),
		ensemble.WithMinSamplesLeaf(f.MinSamplesLeaf),
		ensemble.WithOOBScore(f.OOBScore),
	}
	if f.RandomState != nil {
		opts = append(opts, ensemble.WithRandomState(*f.RandomState))
	}
	return opts, nil
}
