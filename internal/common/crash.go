package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CrashLogDir is where crash files are written; set from [logging] dir at startup
var CrashLogDir = "./logs"

var (
	activeRunsMu sync.Mutex
	activeRuns   = map[string]ActiveRun{}
)

// ActiveRun identifies a scenario run in flight when the process crashed
type ActiveRun struct {
	RunID    string    `yaml:"run_id"`
	Scenario string    `yaml:"scenario"`
	Started  time.Time `yaml:"started"`
}

// CrashReport is the YAML document written to crash-<timestamp>.yaml
type CrashReport struct {
	Time       time.Time   `yaml:"time"`
	Version    string      `yaml:"version"`
	Panic      string      `yaml:"panic"`
	ActiveRuns []ActiveRun `yaml:"active_runs"`
	Goroutines int         `yaml:"goroutines"`
	Platform   string      `yaml:"platform"`
	HeapMB     uint64      `yaml:"heap_mb"`
	NumGC      uint32      `yaml:"num_gc"`
	Stack      string      `yaml:"stack"`
	AllStacks  string      `yaml:"all_stacks"`
}

// InstallCrashHandler prepares the crash directory. Pair it with
// defer RecoverWithCrashFile() at the top of main.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create log directory: %v\n", err)
	}
}

// TrackRun records a run as in flight until the returned func is called
func TrackRun(runID, scenario string) func() {
	activeRunsMu.Lock()
	activeRuns[runID] = ActiveRun{RunID: runID, Scenario: scenario, Started: time.Now()}
	activeRunsMu.Unlock()
	return func() {
		activeRunsMu.Lock()
		delete(activeRuns, runID)
		activeRunsMu.Unlock()
	}
}

// ActiveRuns returns the runs currently in flight, oldest first
func ActiveRuns() []ActiveRun {
	activeRunsMu.Lock()
	defer activeRunsMu.Unlock()
	out := make([]ActiveRun, 0, len(activeRuns))
	for _, run := range activeRuns {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// NewCrashReport captures process state for a panic value
func NewCrashReport(panicVal interface{}, stackTrace string) CrashReport {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return CrashReport{
		Time:       time.Now(),
		Version:    GetFullVersion(),
		Panic:      fmt.Sprintf("%v", panicVal),
		ActiveRuns: ActiveRuns(),
		Goroutines: runtime.NumGoroutine(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		HeapMB:     mem.Alloc / 1024 / 1024,
		NumGC:      mem.NumGC,
		Stack:      stackTrace,
		AllStacks:  GetAllGoroutineStacks(),
	}
}

// WriteCrashFile writes the crash report into CrashLogDir and returns its path.
// On failure the report goes to stderr and "" is returned.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	report := NewCrashReport(panicVal, stackTrace)
	data, err := yaml.Marshal(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: %v\n%s\n", panicVal, stackTrace)
		return ""
	}

	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.yaml", report.Time.Format("2006-01-02T15-04-05")))
	if err := os.WriteFile(crashPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to write crash file: %v\n%s", err, data)
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\n", crashPath)
	fmt.Fprintf(os.Stderr, "Panic: %v\n", panicVal)
	for _, run := range report.ActiveRuns {
		fmt.Fprintf(os.Stderr, "Interrupted run: %s (%s)\n", run.RunID, run.Scenario)
	}
	return crashPath
}

// GetAllGoroutineStacks returns the stacks of every goroutine, capped at 64MB
func GetAllGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// GetStackTrace returns the current goroutine's stack trace
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// RecoverWithCrashFile writes a crash file and exits when the deferring goroutine panics.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, GetStackTrace())
		os.Exit(1)
	}
}
