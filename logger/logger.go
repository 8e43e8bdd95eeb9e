// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// Logger is the structured logging surface used across the service.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyValuePairs ...any)
	Info(msg string, keyValuePairs ...any)
	Warn(msg string, keyValuePairs ...any)
	Error(msg string, keyValuePairs ...any)
	With(keyValuePairs ...any) Logger
	Flush() error
}

type mlogAdapter struct {
	logger *mlog.Logger
	fields []mlog.Field
}

// New wraps an mlog.Logger.
func New(logger *mlog.Logger) Logger {
	return &mlogAdapter{logger: logger}
}

func (a *mlogAdapter) Debug(msg string, keyValuePairs ...any) {
	a.logger.Debug(msg, a.fieldsWith(keyValuePairs)...)
}

func (a *mlogAdapter) Info(msg string, keyValuePairs ...any) {
	a.logger.Info(msg, a.fieldsWith(keyValuePairs)...)
}

func (a *mlogAdapter) Warn(msg string, keyValuePairs ...any) {
	a.logger.Warn(msg, a.fieldsWith(keyValuePairs)...)
}

func (a *mlogAdapter) Error(msg string, keyValuePairs ...any) {
	a.logger.Error(msg, a.fieldsWith(keyValuePairs)...)
}

func (a *mlogAdapter) With(keyValuePairs ...any) Logger {
	return &mlogAdapter{logger: a.logger, fields: a.fieldsWith(keyValuePairs)}
}

func (a *mlogAdapter) Flush() error {
	return a.logger.Flush()
}

func (a *mlogAdapter) fieldsWith(keyValuePairs []any) []mlog.Field {
	fields := make([]mlog.Field, 0, len(a.fields)+len(keyValuePairs)/2)
	fields = append(fields, a.fields...)
	return append(fields, keyValuePairsToFields(keyValuePairs)...)
}

// keyValuePairsToFields converts key-value pairs to mlog fields, skipping
// pairs whose key is not a string.
func keyValuePairsToFields(keyValuePairs []any) []mlog.Field {
	fields := make([]mlog.Field, 0, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs)-1; i += 2 {
		key, ok := keyValuePairs[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keyValuePairs[i+1].(error); isErr {
			fields = append(fields, mlog.String(key, err.Error()))
			continue
		}
		fields = append(fields, mlog.Any(key, keyValuePairs[i+1]))
	}
	return fields
}

// Options controls the targets configured by NewWithOptions.
type Options struct {
	Level   string
	LogFile string
	// JSONConsole switches the stderr target from plain to json format.
	JSONConsole bool
}

// NewWithOptions creates a fully configured logger with a console target on
// stderr and an optional json file target. Standard library log output is
// redirected through it.
func NewWithOptions(opts Options) (Logger, error) {
	mlogger, err := NewMlogLogger(opts)
	if err != nil {
		return nil, err
	}
	return New(mlogger), nil
}

// NewMlogLogger builds the underlying mlog.Logger for NewWithOptions.
func NewMlogLogger(opts Options) (*mlog.Logger, error) {
	logger, err := mlog.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create new logger: %w", err)
	}

	levels, err := levelsFrom(opts.Level)
	if err != nil {
		return nil, err
	}

	cfg := make(mlog.LoggerConfiguration)

	consoleFormat := "plain"
	formatOptions := json.RawMessage(`{"enable_color": false, "delim": " "}`)
	if opts.JSONConsole {
		consoleFormat = "json"
		formatOptions = nil
	}
	cfg["console"] = mlog.TargetCfg{
		Type:          "console",
		Levels:        levels,
		Format:        consoleFormat,
		FormatOptions: formatOptions,
		Options:       json.RawMessage(`{"out": "stderr"}`),
		MaxQueueSize:  1000,
	}

	if opts.LogFile != "" {
		fileOptions, err := json.Marshal(map[string]any{
			"filename": opts.LogFile,
			"compress": false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal file target options: %w", err)
		}
		cfg["file"] = mlog.TargetCfg{
			Type:         "file",
			Levels:       levels,
			Format:       "json",
			Options:      fileOptions,
			MaxQueueSize: 1000,
		}
	}

	if err = logger.ConfigureTargets(cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to configure logger targets: %w", err)
	}

	logger.RedirectStdLog(mlog.LvlStdLog)

	return logger, nil
}

// ValidateLevel reports whether level is one of debug, info, warn or error.
func ValidateLevel(level string) error {
	_, err := levelsFrom(level)
	return err
}

func levelsFrom(level string) ([]mlog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return []mlog.Level{mlog.LvlInfo, mlog.LvlWarn, mlog.LvlError}, nil
	case "debug":
		return []mlog.Level{mlog.LvlDebug, mlog.LvlInfo, mlog.LvlWarn, mlog.LvlError}, nil
	case "warn":
		return []mlog.Level{mlog.LvlWarn, mlog.LvlError}, nil
	case "error":
		return []mlog.Level{mlog.LvlError}, nil
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
}

// NewNop returns a logger without targets. Everything logged to it is discarded.
func NewNop() Logger {
	mlogger, err := mlog.NewLogger()
	if err != nil {
		panic(fmt.Sprintf("failed to create nop logger: %v", err))
	}
	return New(mlogger)
}
