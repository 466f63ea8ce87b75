package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const normalLogSize = 512

// Flags to modify Backend's behavior.
const (
	// LogFlagLongFile adds the full path and line number of the logging
	// callsite to every entry.
	LogFlagLongFile uint32 = 1 << iota

	// LogFlagShortFile adds the file name and line number of the logging
	// callsite. Takes precedence over LogFlagLongFile.
	LogFlagShortFile
)

// logFlagsEnvVar names the environment variable holding a comma separated
// list of flags ("longfile", "shortfile") applied to backends built by NewBackend.
const logFlagsEnvVar = "TGRAPHD_LOGFLAGS"

// RotationSettings controls when a log file is rolled and how many rolled
// files are kept.
type RotationSettings struct {
	ThresholdKB int64
	MaxRolls    int
}

// DefaultRotationSettings rolls a log file at 100MB and keeps the last 8 rolls.
var DefaultRotationSettings = RotationSettings{
	ThresholdKB: 100 * 1000,
	MaxRolls:    8,
}

func flagsFromEnvironment() uint32 {
	var flags uint32
	for _, flag := range strings.Split(os.Getenv(logFlagsEnvVar), ",") {
		switch strings.TrimSpace(flag) {
		case "longfile":
			flags |= LogFlagLongFile
		case "shortfile":
			flags |= LogFlagShortFile
		}
	}
	return flags
}

type levelWriter struct {
	io.WriteCloser
	minLevel Level
}

// Backend fans log entries from all subsystem loggers out to its writers.
// Entries are written by a single goroutine started by Run.
type Backend struct {
	flag      uint32
	isRunning uint32
	writers   []levelWriter
	entries   chan logEntry

	closeOnce sync.Once
	done      chan struct{}
}

// NewBackendWithFlags creates a Backend with explicit flags, ignoring the
// environment.
func NewBackendWithFlags(flags uint32) *Backend {
	return &Backend{
		flag:    flags,
		entries: make(chan logEntry),
		done:    make(chan struct{}),
	}
}

// NewBackend creates a Backend with flags read from TGRAPHD_LOGFLAGS.
func NewBackend() *Backend {
	return NewBackendWithFlags(flagsFromEnvironment())
}

// AddLogFile rotates logFile with DefaultRotationSettings and writes every
// entry at or above minLevel into it.
func (b *Backend) AddLogFile(logFile string, minLevel Level) error {
	return b.AddRotatedLogFile(logFile, minLevel, DefaultRotationSettings)
}

// AddRotatedLogFile is like AddLogFile with custom rotation settings. The
// file and its directory are created when missing.
func (b *Backend) AddRotatedLogFile(logFile string, minLevel Level, settings RotationSettings) error {
	if b.IsRunning() {
		return errors.New("cannot add a log file to a running backend")
	}
	if logDir := filepath.Dir(logFile); logDir != "." {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}
	fileRotator, err := rotator.New(logFile, settings.ThresholdKB, false, settings.MaxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create rotator for %s", logFile)
	}
	b.writers = append(b.writers, levelWriter{WriteCloser: fileRotator, minLevel: minLevel})
	return nil
}

// AddLogWriter writes every entry at or above minLevel into writer.
func (b *Backend) AddLogWriter(writer io.WriteCloser, minLevel Level) error {
	if b.IsRunning() {
		return errors.New("cannot add a log writer to a running backend")
	}
	b.writers = append(b.writers, levelWriter{WriteCloser: writer, minLevel: minLevel})
	return nil
}

// Run starts the writing goroutine. It may only be called once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logging backend is already running")
	}
	go func() {
		defer close(b.done)
		defer func() {
			if err := recover(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Fatal error in the logging backend: %+v\n%s\n", err, debug.Stack())
			}
		}()
		for entry := range b.entries {
			for _, writer := range b.writers {
				if entry.level >= writer.minLevel {
					_, _ = writer.Write(entry.log)
				}
			}
		}
	}()
	return nil
}

// IsRunning returns whether Run was called and Close was not.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close drains pending entries and closes all writers. Further calls are
// no-ops.
func (b *Backend) Close() {
	b.closeOnce.Do(func() {
		wasRunning := atomic.SwapUint32(&b.isRunning, 0) != 0
		close(b.entries)
		if wasRunning {
			<-b.done
		}
		for _, writer := range b.writers {
			_ = writer.Close()
		}
	})
}

// Logger creates a logger for subsystemTag. It starts with logging turned
// off.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{lvl: LevelOff, tag: subsystemTag, b: b, writeChan: b.entries}
}
