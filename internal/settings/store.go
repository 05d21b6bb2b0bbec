// Package settings owns the configuration lifecycle: it persists the config
// document, derives the options document from it and decides when the rule
// files and derivative cache must follow.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Roelanb/webpsync/internal/cachemover"
	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/filestore"
	"github.com/Roelanb/webpsync/internal/htaccess"
	"github.com/Roelanb/webpsync/internal/observability"
	"github.com/Roelanb/webpsync/internal/paths"
	"github.com/Roelanb/webpsync/internal/rules"
)

type RuleSyncer interface {
	SyncRules(cfg config.Config) htaccess.Result
}

type CacheRelocator interface {
	Relocate(oldCfg, newCfg config.Config) cachemover.Result
}

// StateRecorder keeps bookkeeping outside the config document.
type StateRecorder interface {
	MarkConfigured(t time.Time) error
	AppendEvent(kind string, payload any) error
}

type Store struct {
	files *filestore.Store
	paths *paths.Resolver
	rules RuleSyncer
	mover CacheRelocator
	state StateRecorder
	log   observability.Logger
	now   func() time.Time

	mu         sync.Mutex
	lastSynced *config.Config
}

type Option func(*Store)

// WithState records saves and their outcomes in r.
func WithState(r StateRecorder) Option {
	return func(s *Store) { s.state = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(files *filestore.Store, resolver *paths.Resolver, syncer RuleSyncer, mover CacheRelocator, log observability.Logger, opts ...Option) *Store {
	s := &Store{
		files: files,
		paths: resolver,
		rules: syncer,
		mover: mover,
		log:   log,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the stored config.
func (s *Store) Load() (config.Config, error) {
	return config.Load(s.files, s.paths.ConfigFile())
}

// LoadOrDefault reads the stored config, falling back to the defaults when
// there is none. A malformed document counts as absent. The bool reports
// whether a usable document existed.
func (s *Store) LoadOrDefault() (config.Config, bool, error) {
	cfg, err := s.Load()
	switch {
	case errors.Is(err, filestore.ErrNotFound):
		return config.Default(), false, nil
	case errors.Is(err, filestore.ErrParse):
		s.log.Warnw("stored config is malformed, using defaults", "path", s.paths.ConfigFile(), "err", err)
		return config.Default(), false, nil
	case err != nil:
		return config.Config{}, false, err
	}
	return cfg, true, nil
}

// Stamp returns cfg with the path facts of this site recorded in it.
func (s *Store) Stamp(cfg config.Config) config.Config {
	cfg.PathsUsedInRules = s.paths.Facts()
	return cfg
}

// Save persists cfg as a whole document, stamped with the current path facts,
// and returns what was written.
func (s *Store) Save(cfg config.Config) (config.Config, error) {
	stamped := config.Normalize(s.Stamp(cfg))
	if err := config.Save(s.files, s.paths.ConfigFile(), stamped); err != nil {
		return stamped, err
	}
	return stamped, nil
}

// SaveOptions derives the options document from cfg and persists it.
func (s *Store) SaveOptions(cfg config.Config) error {
	if err := s.files.SaveJSON(s.paths.OptionsFile(), config.DeriveOptions(cfg)); err != nil {
		return fmt.Errorf("save options: %w", err)
	}
	return nil
}

// OptionsDocument returns the persisted options document.
func (s *Store) OptionsDocument() ([]byte, error) {
	return s.files.Load(s.paths.OptionsFile())
}

// Rules returns the rule lines the stored config produces for this site.
func (s *Store) Rules() ([]string, error) {
	cfg, _, err := s.LoadOrDefault()
	if err != nil {
		return nil, err
	}
	return rules.Generate(s.Stamp(cfg)), nil
}

// SaveAll persists cfg, derives and persists the options, and syncs the rule
// files when force is set or a rule input differs from the previously stored
// config. Each of the three writes is attempted regardless of the others.
func (s *Store) SaveAll(cfg config.Config, force bool) SaveReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAll(cfg, force)
}

func (s *Store) saveAll(cfg config.Config, force bool) SaveReport {
	prev, prevErr := s.Load()
	stamped := config.Normalize(s.Stamp(cfg))

	var rep SaveReport
	switch {
	case force:
		rep.RulesNeedUpdate = true
	case prevErr != nil:
		// nothing trustworthy to compare against
		rep.RulesNeedUpdate = true
		if !errors.Is(prevErr, filestore.ErrNotFound) {
			s.log.Warnw("previous config unreadable, rules will be regenerated", "err", prevErr)
		}
	default:
		rep.RulesNeedUpdate = config.RulesNeedUpdate(prev, stamped)
	}

	if _, err := s.Save(stamped); err != nil {
		rep.ConfigError = err.Error()
		s.log.Errorw("config save failed", "path", s.paths.ConfigFile(), "err", err)
	} else {
		rep.ConfigSaved = true
	}

	if err := s.SaveOptions(stamped); err != nil {
		rep.OptionsError = err.Error()
		s.log.Errorw("options save failed", "path", s.paths.OptionsFile(), "err", err)
	} else {
		rep.OptionsSaved = true
	}

	if rep.RulesNeedUpdate {
		out := s.rules.SyncRules(stamped)
		rep.RuleOutcome = &out
		rep.RulesSynced = !out.Failed()
		if rep.RulesSynced {
			s.lastSynced = &stamped
		}
	}

	s.record(rep)
	s.log.Infow("configuration saved",
		"config_saved", rep.ConfigSaved, "options_saved", rep.OptionsSaved,
		"rules_needed", rep.RulesNeedUpdate, "rules_synced", rep.RulesSynced, "force", force)
	return rep
}

func (s *Store) record(rep SaveReport) {
	if s.state == nil {
		return
	}
	if rep.ConfigSaved {
		if err := s.state.MarkConfigured(s.now()); err != nil {
			s.log.Warnw("state update failed", "err", err)
		}
	}
	if err := s.state.AppendEvent("save", rep); err != nil {
		s.log.Warnw("state event failed", "kind", "save", "err", err)
	}
}

// Submit merges a form submission into the stored config, saves everything
// and relocates derivative files when the destination scheme changed. Files
// are only moved once both the config and the options document are saved.
func (s *Store) Submit(sub config.Submission) SubmitReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed, err := s.LoadOrDefault()
	if err != nil {
		s.log.Warnw("stored config unreadable, merging into defaults", "err", err)
		old = config.Default()
	}
	next := config.ApplySubmission(old, sub)

	rep := SubmitReport{
		Existed:      existed,
		Save:         s.saveAll(next, sub.Force),
		SchemeChange: config.CompareSchemes(old, next),
	}
	if rep.SchemeChange != config.SchemeUnchanged && rep.Save.ConfigSaved && rep.Save.OptionsSaved {
		moved := s.mover.Relocate(old, next)
		rep.Relocation = &moved
		if s.state != nil {
			if err := s.state.AppendEvent("relocate", moved); err != nil {
				s.log.Warnw("state event failed", "kind", "relocate", "err", err)
			}
		}
	}
	return rep
}

// SyncRules regenerates the rules from the stored config.
func (s *Store) SyncRules(force bool) (htaccess.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, _, err := s.LoadOrDefault()
	if err != nil {
		return htaccess.Result{}, false, err
	}
	stamped := config.Normalize(s.Stamp(cfg))
	if !force && s.lastSynced != nil && !config.RulesNeedUpdate(*s.lastSynced, stamped) {
		return htaccess.Result{}, false, nil
	}
	out := s.rules.SyncRules(stamped)
	if !out.Failed() {
		s.lastSynced = &stamped
	}
	return out, true, nil
}

// Reconcile brings the derived artifacts in line with the config document as
// it is on disk, for example after it was edited by hand. It only writes what
// differs, so running it after its own writes changes nothing.
func (s *Store) Reconcile() (ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep ReconcileReport
	cfg, err := s.Load()
	if err != nil {
		return rep, err
	}
	stamped := config.Normalize(s.Stamp(cfg))

	if stamped.PathsUsedInRules != cfg.PathsUsedInRules {
		if _, err := s.Save(stamped); err != nil {
			return rep, err
		}
		rep.ConfigRestamped = true
	}

	want, err := filestore.Marshal(config.DeriveOptions(stamped))
	if err != nil {
		return rep, err
	}
	have, err := s.OptionsDocument()
	if err != nil || !bytes.Equal(have, want) {
		if err := s.files.Save(s.paths.OptionsFile(), want); err != nil {
			return rep, fmt.Errorf("save options: %w", err)
		}
		rep.OptionsSaved = true
	}

	if s.lastSynced == nil || config.RulesNeedUpdate(*s.lastSynced, stamped) {
		out := s.rules.SyncRules(stamped)
		rep.RuleOutcome = &out
		rep.RulesSynced = !out.Failed()
		if rep.RulesSynced {
			s.lastSynced = &stamped
		}
	}

	if rep.Changed() {
		s.log.Infow("configuration reconciled",
			"restamped", rep.ConfigRestamped, "options_saved", rep.OptionsSaved, "rules_synced", rep.RulesSynced)
		if s.state != nil {
			if err := s.state.AppendEvent("reconcile", rep); err != nil {
				s.log.Warnw("state event failed", "kind", "reconcile", "err", err)
			}
		}
	}
	return rep, nil
}
