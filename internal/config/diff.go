package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// LogLevel and Voice can be applied to a running server; everything else
// tracked here needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged bool
	NewVoice     string

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart (e.g. "providers", "server.listen_addr").
	RestartRequired []string
}

// Changed reports whether d holds any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VoiceChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Voice
	if old.Advisor.Voice != new.Advisor.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Advisor.Voice
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Server.TraceSampleRatio != new.Server.TraceSampleRatio {
		d.RestartRequired = append(d.RestartRequired, "server.trace_sample_ratio")
	}
	if old.Server.MaxBodyBytes != new.Server.MaxBodyBytes {
		d.RestartRequired = append(d.RestartRequired, "server.max_body_bytes")
	}
	if old.Server.ShutdownTimeout != new.Server.ShutdownTimeout {
		d.RestartRequired = append(d.RestartRequired, "server.shutdown_timeout")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	oldAdv, newAdv := old.Advisor, new.Advisor
	oldAdv.Voice, newAdv.Voice = "", ""
	if !reflect.DeepEqual(oldAdv, newAdv) {
		d.RestartRequired = append(d.RestartRequired, "advisor")
	}
	if !reflect.DeepEqual(old.Audio, new.Audio) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}

	return d
}
