// Package retention lists backup artifacts and evicts those outside the
// configured count and age bounds.
package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kebairia/markabak/internal/logger"
)

var ErrRetention = errors.New("retention cleanup failed")

// Artifact is one stored backup file.
type Artifact struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Policy bounds the artifact store. A value <= 0 disables that rule.
type Policy struct {
	MaxBackups    int
	RetentionDays int
}

// Report summarizes one retention pass.
type Report struct {
	Kept         int
	Deleted      []string
	DeletedBytes int64
	Errors       []error
}

// Err folds the collected failures into one error, or nil.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return errors.Join(r.Errors...)
}

// Matcher recognizes artifact file names.
type Matcher struct {
	Product   string
	Extension string
}

// Match reports whether name looks like <product>-backup-*.<extension>.
func (m Matcher) Match(name string) bool {
	return strings.HasPrefix(name, m.Product+"-backup-") &&
		strings.HasSuffix(name, "."+m.Extension)
}

// List returns the artifacts in dir, newest first. A missing directory
// holds no artifacts.
func List(dir string, m Matcher) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory %q: %w", dir, err)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !m.Match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Deleted between ReadDir and Info.
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:     entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].Modified.Equal(artifacts[j].Modified) {
			return artifacts[i].Name > artifacts[j].Name
		}
		return artifacts[i].Modified.After(artifacts[j].Modified)
	})
	return artifacts, nil
}

// Manager applies a Policy to one backup directory.
type Manager struct {
	dir     string
	matcher Matcher
	policy  Policy
	logger  logger.Logger
}

type Option func(*Manager)

func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(dir string, matcher Matcher, policy Policy, opts ...Option) *Manager {
	m := &Manager{
		dir:     dir,
		matcher: matcher,
		policy:  policy,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Policy() Policy { return m.policy }

// List returns the managed artifacts, newest first.
func (m *Manager) List() ([]Artifact, error) {
	return List(m.dir, m.matcher)
}

// Apply deletes every artifact past MaxBackups in newest-first order and
// every artifact older than RetentionDays relative to now. Failures are
// logged and collected; they never stop the pass.
func (m *Manager) Apply(now time.Time) Report {
	var report Report

	artifacts, err := m.List()
	if err != nil {
		m.logger.Error("retention listing failed", "dir", m.dir, "error", err)
		report.Errors = append(report.Errors, fmt.Errorf("%w: %w", ErrRetention, err))
		return report
	}

	doomed := selectForDeletion(artifacts, m.policy, now)
	for _, a := range artifacts {
		if !doomed[a.Path] {
			report.Kept++
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Someone else got there first; the bound still holds.
				continue
			}
			m.logger.Warn("failed to delete backup", "path", a.Path, "error", err)
			report.Errors = append(report.Errors, fmt.Errorf("%w: delete %q: %w", ErrRetention, a.Path, err))
			continue
		}
		report.Deleted = append(report.Deleted, a.Name)
		report.DeletedBytes += a.Size
	}

	if len(report.Deleted) > 0 {
		m.logger.Info("retention applied",
			"dir", m.dir,
			"deleted", len(report.Deleted),
			"freed_bytes", report.DeletedBytes,
			"kept", report.Kept,
		)
	}
	return report
}

// selectForDeletion returns the set of paths to delete. artifacts must be
// sorted newest first. A set keeps an artifact matched by both rules from
// being deleted twice.
func selectForDeletion(artifacts []Artifact, policy Policy, now time.Time) map[string]bool {
	doomed := make(map[string]bool)

	if policy.MaxBackups > 0 {
		for i := policy.MaxBackups; i < len(artifacts); i++ {
			doomed[artifacts[i].Path] = true
		}
	}
	if policy.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.RetentionDays)
		for _, a := range artifacts {
			if a.Modified.Before(cutoff) {
				doomed[a.Path] = true
			}
		}
	}
	return doomed
}
