// Package config holds the chatprep configuration surface: input source,
// output sinks, dataset segmentation knobs, and the fine-tuning pass-through
// section that rides along as run metadata.
package config

import (
	"strings"
	"time"
)

type Config struct {
	LogLevel      string `yaml:"log_level"`
	Port          int    `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	NatsURL       string `yaml:"nats_url"`
	NatsToken     string `yaml:"nats_token"`
	FineTuningURL string `yaml:"fine_tuning_url"`

	Input      Input      `yaml:"input"`
	Output     Output     `yaml:"output"`
	Dataset    Dataset    `yaml:"dataset"`
	FineTuning FineTuning `yaml:"fine_tuning"`
}

// Input selects where raw chats come from: one export file embedding many
// chats, or a directory of per-chat files.
type Input struct {
	Mode string `yaml:"mode"` // "file" or "dir"
	Path string `yaml:"path"`
}

// Output selects the active export sinks. Modes are independent: either,
// both, or neither of "local" and "s3".
type Output struct {
	Modes       []string `yaml:"modes"`
	LocalDir    string   `yaml:"local_dir"`
	S3Bucket    string   `yaml:"s3_bucket"`
	S3Region    string   `yaml:"s3_region"`
	S3Endpoint  string   `yaml:"s3_endpoint"`
	S3AccessKey string   `yaml:"s3_access_key"`
	S3SecretKey string   `yaml:"s3_secret_key"`
}

func (o Output) HasMode(mode string) bool {
	for _, m := range o.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Dataset carries the block segmentation parameters.
type Dataset struct {
	TargetName              string `yaml:"target_name"`
	SystemPrompt            string `yaml:"system_prompt"`
	DateLimit               string `yaml:"date_limit"`
	ConvoBlockThresholdSecs int    `yaml:"convo_block_threshold_secs"`
	MinTokensPerBlock       int    `yaml:"min_tokens_per_block"`
	MaxTokensPerBlock       int    `yaml:"max_tokens_per_block"`
	MessageDelimiter        string `yaml:"message_delimiter"`
	Workers                 int    `yaml:"workers"`
}

// FineTuning mirrors the downstream training configuration. None of it is
// algorithmic here.
type FineTuning struct {
	Model    Model    `yaml:"model"`
	Split    Split    `yaml:"dataset"`
	LoRA     LoRA     `yaml:"lora"`
	Training Training `yaml:"training"`
}

type Model struct {
	Name         string `yaml:"name"`
	MaxSeqLength int    `yaml:"max_seq_length"`
	LoadIn4Bit   bool   `yaml:"load_in_4bit"`
	ChatTemplate string `yaml:"chat_template"`
}

type Split struct {
	Split   string `yaml:"split"`
	NumProc int    `yaml:"num_proc"`
}

type LoRA struct {
	R                        int      `yaml:"r"`
	Alpha                    int      `yaml:"alpha"`
	Dropout                  float64  `yaml:"dropout"`
	Bias                     string   `yaml:"bias"`
	UseGradientCheckpointing string   `yaml:"use_gradient_checkpointing"`
	RandomState              int      `yaml:"random_state"`
	UseRSLoRA                bool     `yaml:"use_rslora"`
	TargetModules            []string `yaml:"target_modules"`
}

type Training struct {
	PerDeviceTrainBatchSize   int     `yaml:"per_device_train_batch_size"`
	GradientAccumulationSteps int     `yaml:"gradient_accumulation_steps"`
	WarmupSteps               int     `yaml:"warmup_steps"`
	MaxSteps                  int     `yaml:"max_steps"`
	LearningRate              float64 `yaml:"learning_rate"`
	WeightDecay               float64 `yaml:"weight_decay"`
	LRSchedulerType           string  `yaml:"lr_scheduler_type"`
	Seed                      int     `yaml:"seed"`
	Packing                   bool    `yaml:"packing"`
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8760
	}
	if c.Input.Mode == "" {
		c.Input.Mode = "file"
	}
	if c.Dataset.Workers == 0 {
		c.Dataset.Workers = 4
	}
	if c.Dataset.MessageDelimiter == "" {
		c.Dataset.MessageDelimiter = ">>>"
	}
	if c.FineTuning.Model.Name == "" {
		c.FineTuning.Model.Name = "gpt-4o"
	}
}

// dateLimitSentinels are values meaning "no limit". The upstream config used
// a literal "None" string here, so recognized sentinels disable the filter
// rather than being guessed at as dates.
var dateLimitSentinels = map[string]bool{
	"": true, "none": true, "null": true, "nil": true, "~": true,
}

// ParseDateLimit interprets the date_limit setting. It returns the cutoff and
// true when a date is configured, or a zero time and false for sentinel
// values. An unparseable non-sentinel value is reported as an error; callers
// log it and proceed with no limit.
func ParseDateLimit(s string) (time.Time, bool, error) {
	if dateLimitSentinels[strings.ToLower(strings.TrimSpace(s))] {
		return time.Time{}, false, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true, nil
		}
	}
	return time.Time{}, false, &InvalidError{Field: "dataset.date_limit", Reason: "not a date or a null sentinel: " + s}
}
