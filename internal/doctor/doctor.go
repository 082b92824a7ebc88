// Package doctor reviews an embedder configuration for problems that load
// cleanly but misbehave at runtime.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/lock"
	"github.com/mattjoyce/embedder/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor inspects a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if err := config.Validate(d.cfg); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.checkLoop(r)
	d.checkAPI(r)
	d.checkJournal(r)
	d.checkChannels(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkLoop flags tick and dispatch settings that starve the poller.
func (d *Doctor) checkLoop(r *Result) {
	svc := d.cfg.Service
	if svc.TickInterval > 0 && svc.DispatchTimeout > svc.TickInterval {
		d.addWarning(r, "service", "service.dispatch_timeout",
			fmt.Sprintf("dispatch_timeout %s exceeds tick_interval %s; ticks will run late", svc.DispatchTimeout, svc.TickInterval))
	}
	switch strings.ToUpper(strings.TrimSpace(svc.LogLevel)) {
	case "", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		d.addWarning(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q, INFO will be used", svc.LogLevel))
	}
	if d.cfg.Dispatch.Workers == 1 {
		d.addWarning(r, "dispatch", "dispatch.workers",
			"a single worker runs handlers one at a time")
	}
}

func (d *Doctor) checkAPI(r *Result) {
	api := d.cfg.API
	if !api.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(api.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", api.Listen, err))
		return
	}
	if api.Auth.APIKey != "" {
		return
	}
	if isLoopback(host) {
		d.addWarning(r, "api", "api.auth.api_key", "API enabled without authentication")
		return
	}
	d.addError(r, "api", "api.auth.api_key",
		fmt.Sprintf("API listens on %s without authentication", api.Listen))
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// checkJournal verifies the journal location is usable and not held by
// another running host.
func (d *Doctor) checkJournal(r *Result) {
	j := d.cfg.Journal
	if !j.Enabled || j.Path == "" || j.Path == ":memory:" {
		return
	}

	if err := storage.CheckLocalPath(j.Path); err != nil {
		d.addError(r, "journal", "journal.path", err.Error())
		return
	}

	dir := filepath.Dir(j.Path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.addWarning(r, "journal", "journal.path",
			fmt.Sprintf("directory %s does not exist and will be created", dir))
		return
	case err != nil:
		d.addError(r, "journal", "journal.path", fmt.Sprintf("stat %s: %v", dir, err))
		return
	case !info.IsDir():
		d.addError(r, "journal", "journal.path", fmt.Sprintf("%s is not a directory", dir))
		return
	}

	lockPath := lock.PathFor(j.Path)
	if _, err := os.Stat(lockPath); err != nil {
		return
	}
	l, err := lock.AcquirePIDLock(lockPath)
	if errors.Is(err, lock.ErrLocked) {
		d.addWarning(r, "journal", "journal.path",
			fmt.Sprintf("journal is in use by another host: %v", err))
		return
	}
	if err != nil {
		d.addError(r, "journal", "journal.path", err.Error())
		return
	}
	_ = l.Release()
}

func (d *Doctor) checkChannels(r *Result) {
	ch := d.cfg.Channels
	if !ch.Echo.Enabled && !ch.Heartbeat.Enabled && !ch.TextInput.Enabled && !ch.KeyEvent.Enabled {
		d.addWarning(r, "channels", "channels", "no built-in channels enabled; every inbound message will miss")
	}
	tick := d.cfg.Service.TickInterval
	if ch.Heartbeat.Enabled && tick > 0 && ch.Heartbeat.Interval > 0 && ch.Heartbeat.Interval < tick {
		d.addWarning(r, "channels", "channels.heartbeat.interval",
			fmt.Sprintf("heartbeat interval %s is shorter than tick_interval %s; beats queue between ticks", ch.Heartbeat.Interval, tick))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	writeIssues(&b, "ERROR", r.Errors)
	writeIssues(&b, "WARN ", r.Warnings)
	return b.String()
}

func writeIssues(b *strings.Builder, label string, issues []Issue) {
	for _, is := range issues {
		if is.Field != "" {
			fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, is.Category, is.Field, is.Message)
		} else {
			fmt.Fprintf(b, "  %s [%s] %s\n", label, is.Category, is.Message)
		}
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
