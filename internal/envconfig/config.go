// Package envconfig reads tpload settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel is read from TPLOAD_DEBUG: 0/false is INFO, 1/true DEBUG and 2 TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("TPLOAD_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// String returns a getter for a string variable.
func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

// Uint returns a getter for an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

var (
	// UnknownNames is the policy for checkpoint entries without a parameter: warn, error or ignore.
	UnknownNames = String("TPLOAD_UNKNOWN_NAMES")
	// VocabPadding is the multiple vocabularies are padded to before sharding.
	VocabPadding = Uint("TPLOAD_VOCAB_PAD", 64)
	// WorldSize is the tensor-parallel world size.
	WorldSize = Uint("TPLOAD_WORLD_SIZE", 1)
	// Rank is this process's tensor-parallel rank.
	Rank = Uint("TPLOAD_RANK", 0)
	// Checkpoint is the default checkpoint path.
	Checkpoint = String("TPLOAD_CHECKPOINT")
)

// EnvVar describes one environment variable and its current value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TPLOAD_DEBUG":         {"TPLOAD_DEBUG", LogLevel(), "Show additional debug information (1 for DEBUG, 2 for TRACE)"},
		"TPLOAD_UNKNOWN_NAMES": {"TPLOAD_UNKNOWN_NAMES", UnknownNames(), "Policy for checkpoint entries without a parameter: warn, error or ignore (default \"warn\")"},
		"TPLOAD_VOCAB_PAD":     {"TPLOAD_VOCAB_PAD", VocabPadding(), "Multiple the vocabulary is padded to (default 64)"},
		"TPLOAD_WORLD_SIZE":    {"TPLOAD_WORLD_SIZE", WorldSize(), "Tensor-parallel world size (default 1)"},
		"TPLOAD_RANK":          {"TPLOAD_RANK", Rank(), "Tensor-parallel rank (default 0)"},
		"TPLOAD_CHECKPOINT":    {"TPLOAD_CHECKPOINT", Checkpoint(), "Checkpoint file or model directory"},
	}
}

// Values returns every variable's current value formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
