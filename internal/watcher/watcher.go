// Package watcher polls the assistants' on-disk state for sessions that are
// not yet managed and announces them for the frontend to adopt.
//
// Three sources feed it: the Claude Code history log, the Claude Code
// projects directory, and the Copilot session-state directory. A discovered
// session is emitted at most once per session id, and the first emit for a
// working directory claims that directory so long-running projects do not
// flood the frontend with one entry per conversation.
package watcher

import (
	"sync"
	"time"

	"github.com/grovetools/weave/pkg/models"
	"github.com/grovetools/weave/util/pathutil"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the polling period.
const DefaultInterval = 10 * time.Second

// Config wires a Watcher to its sources and its consumer.
type Config struct {
	HistoryPath string
	ProjectsDir string
	CopilotDir  string
	Interval    time.Duration

	// IsKnownDir reports whether a working directory is already represented
	// by a managed session.
	IsKnownDir func(dir string) bool
	// OnDiscovered receives each novel session.
	OnDiscovered func(models.DiscoveredSession)
}

// Watcher owns the polling loop. All state is touched only by that loop.
type Watcher struct {
	cfg    Config
	logger *logrus.Entry

	seenSessions map[string]bool
	claimedDirs  map[string]bool

	history historyState

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Watcher.
func New(cfg Config, logger *logrus.Entry) *Watcher {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	return &Watcher{
		cfg:          cfg,
		logger:       logger,
		seenSessions: make(map[string]bool),
		claimedDirs:  make(map[string]bool),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the polling loop. The first poll runs immediately so
// pre-existing sessions for un-managed directories surface without waiting
// a full interval.
func (w *Watcher) Start() {
	go func() {
		defer close(w.done)

		w.poll()
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
}

// Stop ends the polling loop and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Watcher) poll() {
	w.pollHistory()
	w.pollProjects()
	w.pollCopilot()
}

// consider applies the deduplication rule and emits when the session is
// novel. The first emit for a directory claims it; later session ids for
// the same directory are absorbed silently.
func (w *Watcher) consider(d models.DiscoveredSession) {
	if d.SessionID == "" || d.WorkingDir == "" {
		return
	}
	if w.seenSessions[d.SessionID] {
		return
	}
	w.seenSessions[d.SessionID] = true

	dirKey, err := pathutil.CanonicalKey(d.WorkingDir)
	if err != nil {
		dirKey = d.WorkingDir
	}
	if w.claimedDirs[dirKey] {
		return
	}
	if w.cfg.IsKnownDir != nil && w.cfg.IsKnownDir(d.WorkingDir) {
		w.claimedDirs[dirKey] = true
		return
	}

	w.claimedDirs[dirKey] = true
	w.logger.WithFields(logrus.Fields{"kind": d.Kind, "dir": d.WorkingDir}).Debug("Discovered session")
	if w.cfg.OnDiscovered != nil {
		w.cfg.OnDiscovered(d)
	}
}
