package config

import (
	"errors"
	"fmt"
)

// InvalidError is a single configuration fault. Validation collects all of
// them; any one is fatal at startup.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &InvalidError{Field: field, Reason: reason}
}

// Validate checks the structural validity of a Config. All faults are
// reported together via errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Input.Mode {
	case "file", "dir":
	default:
		errs = append(errs, invalid("input.mode", fmt.Sprintf("unknown mode %q (want \"file\" or \"dir\")", cfg.Input.Mode)))
	}
	if cfg.Input.Path == "" {
		errs = append(errs, invalid("input.path", "is required"))
	}

	for _, m := range cfg.Output.Modes {
		if m != "local" && m != "s3" {
			errs = append(errs, invalid("output.modes", fmt.Sprintf("unknown mode %q (want \"local\" or \"s3\")", m)))
		}
	}
	if cfg.Output.HasMode("local") && cfg.Output.LocalDir == "" {
		errs = append(errs, invalid("output.local_dir", "is required when local output is enabled"))
	}
	if cfg.Output.HasMode("s3") {
		if cfg.Output.S3Bucket == "" {
			errs = append(errs, invalid("output.s3_bucket", "is required when s3 output is enabled"))
		}
		if cfg.Output.S3Region == "" {
			errs = append(errs, invalid("output.s3_region", "is required when s3 output is enabled"))
		}
	}

	d := cfg.Dataset
	if d.TargetName == "" {
		errs = append(errs, invalid("dataset.target_name", "is required"))
	}
	if d.ConvoBlockThresholdSecs <= 0 {
		errs = append(errs, invalid("dataset.convo_block_threshold_secs", fmt.Sprintf("must be positive, got %d", d.ConvoBlockThresholdSecs)))
	}
	if d.MinTokensPerBlock <= 0 {
		errs = append(errs, invalid("dataset.min_tokens_per_block", fmt.Sprintf("must be positive, got %d", d.MinTokensPerBlock)))
	}
	if d.MaxTokensPerBlock <= 0 {
		errs = append(errs, invalid("dataset.max_tokens_per_block", fmt.Sprintf("must be positive, got %d", d.MaxTokensPerBlock)))
	}
	if d.MinTokensPerBlock > 0 && d.MaxTokensPerBlock > 0 && d.MinTokensPerBlock > d.MaxTokensPerBlock {
		errs = append(errs, invalid("dataset", fmt.Sprintf("min_tokens_per_block (%d) exceeds max_tokens_per_block (%d)", d.MinTokensPerBlock, d.MaxTokensPerBlock)))
	}
	if d.MessageDelimiter == "" {
		errs = append(errs, invalid("dataset.message_delimiter", "must be non-empty"))
	}
	if d.Workers < 1 {
		errs = append(errs, invalid("dataset.workers", fmt.Sprintf("must be at least 1, got %d", d.Workers)))
	}

	return errors.Join(errs...)
}
