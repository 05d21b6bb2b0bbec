// Package htaccess distributes generated rules across the rule-file locations
// of a site and reports what happened at each one.
package htaccess

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/filestore"
	"github.com/Roelanb/webpsync/internal/observability"
	"github.com/Roelanb/webpsync/internal/paths"
	"github.com/Roelanb/webpsync/internal/rules"
)

// MainResult is where the main rule set ended up.
type MainResult string

const (
	MainIndex   MainResult = "index"
	MainContent MainResult = "wp-content"
	MainFailed  MainResult = "failed"
)

// Inclusion says whether an extra location needs its own copy of the rules.
type Inclusion string

const (
	InclusionYes     Inclusion = "yes"
	InclusionNo      Inclusion = "no"
	InclusionDepends Inclusion = "depends"
)

type Action string

const (
	ActionWrite Action = "write"
	ActionClear Action = "clear"
)

// Outcome records one attempted rule-file write or clear.
type Outcome struct {
	Location paths.Location `json:"location"`
	Dir      string         `json:"dir"`
	Action   Action         `json:"action"`
	OK       bool           `json:"ok"`
	HadRules bool           `json:"had-rules"`
	Error    string         `json:"error,omitempty"`
}

// Result is the outcome of a full rule distribution. It is recomputed on every
// sync and never patched.
type Result struct {
	Rules       []string       `json:"rules"`
	MainResult  MainResult     `json:"main-result"`
	MinRequired paths.Location `json:"min-required"`

	PluginToo         Inclusion `json:"plugin-too"`
	PluginFailed      bool      `json:"plugin-failed"`
	PluginFailedBadly bool      `json:"plugin-failed-badly"`

	UploadToo         Inclusion `json:"upload-too"`
	UploadFailed      bool      `json:"upload-failed"`
	UploadFailedBadly bool      `json:"upload-failed-badly"`

	OverridingRulesInWpContentWarning bool `json:"overiding-rules-in-wp-content-warning"`

	Attempts []Outcome `json:"attempts"`
}

// Failed reports whether rule-based routing is non-functional.
func (r Result) Failed() bool {
	return r.MainResult == MainFailed
}

// Writer reads and writes the rule block in each location's rule file.
type Writer struct {
	fs    afero.Fs
	paths *paths.Resolver
	log   observability.Logger
}

func NewWriter(fsys afero.Fs, resolver *paths.Resolver, log observability.Logger) *Writer {
	return &Writer{fs: fsys, paths: resolver, log: log}
}

// HasRules reports whether the rule file for loc carries a rule block.
// A missing file has none.
func (w *Writer) HasRules(loc paths.Location) (bool, error) {
	content, err := w.read(loc)
	if err != nil {
		return false, err
	}
	return HasBlock(content), nil
}

// ReadRules returns the current rule file content for loc, or "" if absent.
func (w *Writer) ReadRules(loc paths.Location) (string, error) {
	return w.read(loc)
}

// WriteRules creates or replaces the rule block for loc, keeping the rest of
// the file. Writing identical content is skipped.
func (w *Writer) WriteRules(loc paths.Location, lines []string) error {
	content, err := w.read(loc)
	if err != nil {
		return err
	}
	next := Splice(content, lines)
	if next == content {
		return nil
	}
	return w.write(loc, next)
}

// ClearRules removes the rule block for loc. It is a no-op when there is none.
func (w *Writer) ClearRules(loc paths.Location) error {
	content, err := w.read(loc)
	if err != nil {
		return err
	}
	next, had := Strip(content)
	if !had {
		return nil
	}
	return w.write(loc, next)
}

func (w *Writer) read(loc paths.Location) (string, error) {
	file := w.paths.RuleFile(loc)
	b, err := afero.ReadFile(w.fs, file)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, wrapPermission(err))
	}
	return string(b), nil
}

func (w *Writer) write(loc paths.Location, content string) error {
	file := w.paths.RuleFile(loc)
	if err := afero.WriteFile(w.fs, file, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, wrapPermission(err))
	}
	return nil
}

func wrapPermission(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w", filestore.ErrPermission, err)
	}
	return err
}

// SyncRules generates rules from cfg and distributes them:
//
//   - the main rules go to the index dir, falling back to wp-content, unless
//     the content dir lives outside the web root, in which case only
//     wp-content will do;
//   - the plugins and uploads dirs get their own copy when the main location
//     does not cover them;
//   - stale blocks that the new layout no longer needs are removed where possible.
//
// Every location is attempted; none of the failures abort the sync.
func (w *Writer) SyncRules(cfg config.Config) Result {
	res := Result{
		Rules:       rules.Generate(cfg),
		MinRequired: paths.LocationIndex,
		MainResult:  MainFailed,
	}
	if w.paths.ContentDirMoved() {
		res.MinRequired = paths.LocationContent
	}

	candidates := []paths.Location{paths.LocationIndex, paths.LocationContent}
	if res.MinRequired == paths.LocationContent {
		candidates = []paths.Location{paths.LocationContent}
	}
	written := map[string]bool{}
	for _, loc := range candidates {
		o := w.attempt(&res, loc, ActionWrite)
		if o.OK {
			res.MainResult = MainResult(loc)
			written[o.Dir] = true
			break
		}
	}
	if res.Failed() {
		w.log.Errorw("rules could not be written to any main location",
			"min_required", res.MinRequired, "index", w.paths.RuleDir(paths.LocationIndex),
			"content", w.paths.RuleDir(paths.LocationContent))
	}

	if res.MainResult == MainIndex && !written[w.paths.RuleDir(paths.LocationContent)] {
		if has, _ := w.mayHaveRules(paths.LocationContent); has {
			o := w.attempt(&res, paths.LocationContent, ActionClear)
			res.OverridingRulesInWpContentWarning = !o.OK
		}
	}

	res.PluginToo, res.PluginFailed, res.PluginFailedBadly = w.extra(&res, paths.LocationPlugins, written)
	res.UploadToo, res.UploadFailed, res.UploadFailedBadly = w.extra(&res, paths.LocationUploads, written)

	w.log.Infow("rules synced",
		"main", res.MainResult, "min_required", res.MinRequired,
		"plugin_too", res.PluginToo, "plugin_failed", res.PluginFailed,
		"upload_too", res.UploadToo, "upload_failed", res.UploadFailed,
		"wp_content_override", res.OverridingRulesInWpContentWarning)
	return res
}

// inclusion decides whether loc needs its own rules before the main write
// is known.
func (w *Writer) inclusion(loc paths.Location, minRequired paths.Location) Inclusion {
	dir := w.paths.RuleDir(loc)
	if w.paths.Covers(paths.LocationContent, dir) {
		return InclusionNo
	}
	if minRequired == paths.LocationIndex && w.paths.Covers(paths.LocationIndex, dir) {
		return InclusionDepends
	}
	return InclusionYes
}

func resolveInclusion(in Inclusion, main MainResult) Inclusion {
	if in != InclusionDepends {
		return in
	}
	switch main {
	case MainIndex:
		return InclusionNo
	case MainContent:
		return InclusionYes
	}
	return InclusionDepends
}

func (w *Writer) extra(res *Result, loc paths.Location, written map[string]bool) (Inclusion, bool, bool) {
	in := resolveInclusion(w.inclusion(loc, res.MinRequired), res.MainResult)
	dir := w.paths.RuleDir(loc)
	switch in {
	case InclusionYes:
		if written[dir] {
			return in, false, false
		}
		o := w.attempt(res, loc, ActionWrite)
		if o.OK {
			written[dir] = true
		}
		return in, !o.OK, !o.OK && o.HadRules
	case InclusionNo:
		if written[dir] {
			return in, false, false
		}
		if has, _ := w.mayHaveRules(loc); has {
			w.attempt(res, loc, ActionClear)
		}
	}
	return in, false, false
}

// mayHaveRules is HasRules, except that a rule file that cannot be read for
// lack of permission counts as carrying a block.
func (w *Writer) mayHaveRules(loc paths.Location) (bool, error) {
	has, err := w.HasRules(loc)
	if errors.Is(err, filestore.ErrPermission) {
		return true, err
	}
	return has, err
}

func (w *Writer) attempt(res *Result, loc paths.Location, action Action) Outcome {
	o := Outcome{Location: loc, Dir: w.paths.RuleDir(loc), Action: action}
	had, err := w.mayHaveRules(loc)
	o.HadRules = had
	if err == nil {
		if action == ActionWrite {
			err = w.WriteRules(loc, res.Rules)
		} else {
			err = w.ClearRules(loc)
		}
	}
	o.OK = err == nil
	if err != nil {
		o.Error = err.Error()
		w.log.Warnw("rule file update failed", "location", loc, "action", action, "had_rules", had, "err", err)
	} else {
		w.log.Debugw("rule file updated", "location", loc, "action", action, "dir", o.Dir)
	}
	res.Attempts = append(res.Attempts, o)
	return o
}
