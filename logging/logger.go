package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/weave/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	activeConfig   Config
	activeConfigMu sync.RWMutex
)

// Configure sets the logging configuration applied to loggers created
// afterwards. Loggers that already exist keep their settings; the daemon
// calls this once before constructing components.
func Configure(cfg Config) {
	activeConfigMu.Lock()
	defer activeConfigMu.Unlock()
	activeConfig = cfg
}

// NewLogger returns the logger for a component, creating and caching it on
// first use. Each component gets its own file sink plus, when appropriate,
// a stderr mirror.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if entry, ok := loggers[component]; ok {
		return entry
	}

	activeConfigMu.RLock()
	cfg := activeConfig
	activeConfigMu.RUnlock()

	logger := logrus.New()
	logger.SetLevel(resolveLevel(cfg))
	logger.SetReportCaller(cfg.ReportCaller || os.Getenv("WEAVE_LOG_CALLER") == "true")
	logger.SetFormatter(formatterFor(cfg.Format))
	logger.SetOutput(combineSinks(fileSink(component, cfg, logger), stderrSink(cfg, logger)))

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// resolveLevel picks the log level: WEAVE_LOG_LEVEL beats the config file,
// and anything unparseable falls back to info.
func resolveLevel(cfg Config) logrus.Level {
	name := cfg.Level
	if env := os.Getenv("WEAVE_LOG_LEVEL"); env != "" {
		name = env
	}
	if level, err := logrus.ParseLevel(name); err == nil {
		return level
	}
	return logrus.InfoLevel
}

func formatterFor(cfg FormatConfig) logrus.Formatter {
	switch cfg.Preset {
	case "json":
		return &logrus.JSONFormatter{}
	case "simple":
		return &TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}}
	}
	return &TextFormatter{Config: cfg}
}

// fileSink opens the component's log file: an explicitly configured path,
// or a per-day file under the state directory. Failures are reported only
// when the sink was asked for explicitly, and the sink is skipped.
func fileSink(component string, cfg Config, logger *logrus.Logger) io.Writer {
	target := cfg.File.Path
	explicit := cfg.File.Enabled && target != ""
	if explicit {
		if strings.HasPrefix(target, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				target = filepath.Join(home, target[2:])
			}
		}
	} else {
		name := fmt.Sprintf("%s-%s.log", component, time.Now().Format("2006-01-02"))
		target = filepath.Join(paths.LogDir(), name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		if explicit {
			logger.Warnf("Failed to create log directory for %s: %v", target, err)
		}
		return nil
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		if explicit {
			logger.Warnf("Failed to open log file %s: %v", target, err)
		}
		return nil
	}
	return file
}

// stderrSink decides whether structured logs also go to stderr. The config
// can force it either way; otherwise they do when debugging, or when stderr
// is not an interactive terminal (pipe, CI, service manager) and therefore
// safe to write to.
func stderrSink(cfg Config, logger *logrus.Logger) io.Writer {
	switch cfg.Format.StructuredToStderr {
	case "always":
		return os.Stderr
	case "never":
		return nil
	}

	debugging := os.Getenv("WEAVE_DEBUG") == "1" || logger.IsLevelEnabled(logrus.DebugLevel)
	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if debugging || !interactive {
		return os.Stderr
	}
	return nil
}

// combineSinks merges the non-nil writers. With none, output is discarded
// entirely; that is the intended quiet default for interactive terminals.
func combineSinks(sinks ...io.Writer) io.Writer {
	var active []io.Writer
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	switch len(active) {
	case 0:
		return io.Discard
	case 1:
		return active[0]
	}
	return io.MultiWriter(active...)
}
