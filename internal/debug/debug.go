package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/liquidmail/liquid-mail/internal/git"
)

var (
	enabled     = os.Getenv("LIQUID_MAIL_DEBUG") != ""
	verboseMode = false
	quietMode   = false
	logMutex    sync.Mutex

	stderr io.Writer = os.Stderr
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// Logf writes to stderr when LIQUID_MAIL_DEBUG is set or --verbose was given.
// A trailing newline is added when the format lacks one.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	logMutex.Lock()
	defer logMutex.Unlock()
	fmt.Fprint(stderr, "[liquid-mail] "+msg)
}

// LogEvent appends an audit line to .liquid-mail/events.log in the enclosing
// repository.
// Format: TIMESTAMP|EVENT|TOPIC|WINDOW|DETAILS
func LogEvent(event, topicID, windowID, details string) {
	root, ok := git.FindRootFromCwd()
	if !ok {
		return
	}
	logPath := filepath.Join(root, ".liquid-mail", "events.log")

	if topicID == "" {
		topicID = "none"
	}
	if windowID == "" {
		windowID = "none"
	}
	entry := fmt.Sprintf("%s|%s|%s|%s|%s\n",
		time.Now().UTC().Format(time.RFC3339), event, topicID, windowID, details)

	logMutex.Lock()
	defer logMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(entry)
}
