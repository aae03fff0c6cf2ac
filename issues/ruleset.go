package issues

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Ruleset is a Table backed by a YAML file, so deployments can grow the
// redaction table without a rebuild. The file holds one "restricted"
// mapping from target name to field names:
//
//	restricted:
//	  header: [cookie]
//	  query: [api_key, token]
//
// A Ruleset serves reads from memory; Watch keeps it current as the file
// changes.
type Ruleset struct {
	path string
	log  *slog.Logger

	mu    sync.RWMutex
	table RestrictedFields
}

var _ Table = (*Ruleset)(nil)

type rulesetFile struct {
	Restricted map[string][]string `yaml:"restricted"`
}

// RulesetOption configures a Ruleset.
type RulesetOption func(*Ruleset)

// WithRulesetLogHandler routes watch and reload logging to h. Logging is
// discarded by default.
func WithRulesetLogHandler(h slog.Handler) RulesetOption {
	return func(rs *Ruleset) {
		if h != nil {
			rs.log = slog.New(h)
		}
	}
}

// LoadRuleset reads the YAML table at path.
func LoadRuleset(path string, opts ...RulesetOption) (*Ruleset, error) {
	rs := &Ruleset{
		path: filepath.Clean(path),
		log:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(rs)
	}
	table, err := loadRulesetFile(rs.path)
	if err != nil {
		return nil, err
	}
	rs.table = table
	return rs, nil
}

// FieldsFor implements Table.
func (rs *Ruleset) FieldsFor(target Target) []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.table[target]
}

// Targets returns the targets currently carrying restrictions.
func (rs *Ruleset) Targets() []Target {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	targets := make([]Target, 0, len(rs.table))
	for t := range rs.table {
		targets = append(targets, t)
	}
	return targets
}

// Reload re-reads the file and swaps the table. A failed read or parse
// leaves the previous table in place.
func (rs *Ruleset) Reload() error {
	table, err := loadRulesetFile(rs.path)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	rs.table = table
	rs.mu.Unlock()
	return nil
}

// Watch reloads the table whenever the file changes, until ctx is
// cancelled. Editors and config mounts replace files by rename, so the
// watch covers the parent directory and filters for the file itself.
func (rs *Ruleset) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ruleset watch: %w", err)
	}
	if err := w.Add(filepath.Dir(rs.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("ruleset watch: %w", err)
	}
	go rs.watchLoop(ctx, w)
	return nil
}

func (rs *Ruleset) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer func() { _ = w.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rs.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if err := rs.Reload(); err != nil {
				rs.log.Warn("ruleset reload failed", slog.String("err", err.Error()))
				continue
			}
			rs.log.Debug("ruleset reloaded", slog.String("path", rs.path))
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			rs.log.Debug("ruleset watch error", slog.String("err", err.Error()))
		}
	}
}

func loadRulesetFile(path string) (RestrictedFields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset %q: %w", path, err)
	}
	var f rulesetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ruleset %q: %w", path, err)
	}
	table := make(RestrictedFields, len(f.Restricted))
	for target, names := range f.Restricted {
		table[Target(target)] = append([]string(nil), names...)
	}
	return table, nil
}
