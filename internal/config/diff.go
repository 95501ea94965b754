package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; format changes
// (sample rate, frame size) and provider swaps require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when either energy threshold changed.
	VADChanged bool
	NewVAD     VADConfig

	// SegmenterChanged is true when the speech floor or closing silence changed.
	SegmenterChanged bool
	NewSegmenter     SegmenterConfig

	// SuppressionChanged is true when the settle delay changed.
	SuppressionChanged bool
	NewSuppression     SuppressionConfig
}

// Empty reports whether no hot-reloadable field changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VADChanged && !d.SegmenterChanged && !d.SuppressionChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}

	if old.Segmenter != new.Segmenter {
		d.SegmenterChanged = true
		d.NewSegmenter = new.Segmenter
	}

	if old.Suppression != new.Suppression {
		d.SuppressionChanged = true
		d.NewSuppression = new.Suppression
	}

	return d
}
