package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func levelString(l Level) string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	rootInstance *fileLogger
	rootOnce     sync.Once
)

// fileLogger writes timestamped, component-tagged lines to stdout and,
// when available, to the vps-agent.log file.
type fileLogger struct {
	file      *os.File
	logger    *log.Logger
	level     Level
	mu        sync.Mutex
	component string
}

func root() *fileLogger {
	rootOnce.Do(func() {
		rootInstance = newFileLogger(LevelInfo)
	})
	return rootInstance
}

// SetLevel sets the minimum level on the shared logger.
func SetLevel(level Level) {
	l := root()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// NewComponentLogger returns the shared logger scoped to a component.
func NewComponentLogger(component string) Logger {
	r := root()
	return &fileLogger{
		file:      r.file,
		logger:    r.logger,
		level:     r.level,
		component: component,
	}
}

func newFileLogger(level Level) *fileLogger {
	l := &fileLogger{level: level}

	dir := os.Getenv("VPS_AGENT_LOG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return l
		}
		dir = home
	}

	path := filepath.Join(dir, "vps-agent.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("open log file: %v", err)
		return l
	}

	l.file = file
	l.logger = log.New(file, "", 0)
	return l
}

var (
	secretPattern = regexp.MustCompile(`(?i)(bearer\s+|api[_-]?key["'=:\s]+)\S+`)
	// Bare key material outside a header context (gateway keys, GitHub and
	// Slack tokens) is masked by its well-known prefix.
	keyMaterialPattern = regexp.MustCompile(`\b(?:sk|ghp|xoxb|xoxp)[-_][A-Za-z0-9_-]{6,}`)
)

func sanitize(line string) string {
	line = secretPattern.ReplaceAllString(line, "${1}[REDACTED]")
	return keyMaterialPattern.ReplaceAllString(line, "[REDACTED]")
}

func (l *fileLogger) log(level Level, format string, args ...any) {
	// level is only mutated through SetLevel on the root before components
	// are derived, so an unlocked read here is fine.
	if level < root().level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "vps-agent"
	}

	message := fmt.Sprintf(format, args...)
	out := sanitize(fmt.Sprintf("%s [%s] [%s] %s:%d - %s",
		time.Now().Format("2006-01-02 15:04:05"), levelString(level), component, file, line, message))

	if l.logger != nil {
		l.logger.Print(out)
	}
	fmt.Println(out)
}

func (l *fileLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }
