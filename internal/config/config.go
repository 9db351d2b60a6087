// Package config loads the reward-assignment core's configuration via
// viper, following the teacher daemon's SetDefault/BindEnv conventions.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ObjectStoreConfig struct {
	Kind                  string `mapstructure:"kind"` // "s3" or "azure"
	Bucket                string `mapstructure:"bucket"`
	Region                string `mapstructure:"region"`
	Endpoint              string `mapstructure:"endpoint"`
	Compression           string `mapstructure:"compression"`
	BufferType            string `mapstructure:"buffer_type"`
	AccessKeyIDSecret     string `mapstructure:"access_key_id_secret"`
	SecretAccessKeySecret string `mapstructure:"secret_access_key_secret"`
	Account               string `mapstructure:"account"`
	Container             string `mapstructure:"container"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type SecretsConfig struct {
	Prefix     string `mapstructure:"prefix"`
	ClusterKey string `mapstructure:"cluster_key"`
}

// RewardAssignmentConfig holds the environment-tunable knobs of spec.md §6.
type RewardAssignmentConfig struct {
	WorkerCount                     int `mapstructure:"worker_count"`
	ReprocessShardWaitTimeInSeconds int `mapstructure:"reprocess_shard_wait_time_in_seconds"`
	WorkerMaxPayloadInMB            int `mapstructure:"worker_max_payload_in_mb"`
}

// CustomizationConfig holds the static project/model/reward-window
// configuration spec.md §6 calls "static configuration (customization)".
type CustomizationConfig struct {
	RewardWindowInSeconds           int                           `mapstructure:"reward_window_in_seconds"`
	Projects                        []string                      `mapstructure:"projects"`
	ProjectNamesToModelNamesMapping map[string]map[string]string  `mapstructure:"project_names_to_model_names_mapping"`
}

type Config struct {
	RecordsBucket    string                 `mapstructure:"records_bucket"`
	ObjectStore      ObjectStoreConfig      `mapstructure:"object_store"`
	Etcd             EtcdConfig             `mapstructure:"etcd"`
	Secrets          SecretsConfig          `mapstructure:"secrets"`
	RewardAssignment RewardAssignmentConfig `mapstructure:"reward_assignment"`
	Customization    CustomizationConfig    `mapstructure:"customization"`
}

// Load reads configuration from cfgFile (if set), "rewardassignd.yaml" in
// the working directory and /etc/rewardassignd/ otherwise, and environment
// variables under the REWARDCORE_ prefix.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("rewardassignd")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/rewardassignd/")
	}

	v.SetEnvPrefix("REWARDCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	v.SetDefault("records_bucket", "")
	v.SetDefault("object_store.kind", "s3")
	v.SetDefault("object_store.compression", "gzip")
	v.SetDefault("object_store.buffer_type", "memory")
	v.SetDefault("etcd.prefix", "/rewardcore/registry")
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("secrets.prefix", "/rewardcore/secrets/store/")
	v.SetDefault("reward_assignment.worker_count", 4)
	v.SetDefault("reward_assignment.reprocess_shard_wait_time_in_seconds", 300)
	v.SetDefault("reward_assignment.worker_max_payload_in_mb", 256)
	v.SetDefault("customization.reward_window_in_seconds", 86400)

	for _, key := range []string{
		"records_bucket",
		"object_store.kind", "object_store.bucket", "object_store.region", "object_store.endpoint",
		"object_store.compression", "object_store.buffer_type",
		"object_store.access_key_id_secret", "object_store.secret_access_key_secret",
		"object_store.account", "object_store.container",
		"etcd.endpoints", "etcd.username", "etcd.password", "etcd.prefix", "etcd.dial_timeout",
		"secrets.prefix", "secrets.cluster_key",
		"reward_assignment.worker_count",
		"reward_assignment.reprocess_shard_wait_time_in_seconds",
		"reward_assignment.worker_max_payload_in_mb",
		"customization.reward_window_in_seconds", "customization.projects",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if cfg.RewardAssignment.WorkerCount < 1 {
		cfg.RewardAssignment.WorkerCount = 1
	}

	return &cfg, nil
}
