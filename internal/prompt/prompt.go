// Package prompt resolves and caches processor prompt templates per
// spec.md §4.7.
package prompt

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/misty-step/imploid/internal/imperrors"
	"github.com/misty-step/imploid/internal/model"
)

// issueNumberToken is substituted with the decimal issue number.
const issueNumberToken = "${issueNumber}"

// Loader resolves prompt templates by precedence and caches their text by
// absolute path for the process lifetime.
type Loader struct {
	homePromptsDir   string
	installedDefaults string

	cache sync.Map // absolute path -> string
}

// New returns a Loader. homePromptsDir is typically ~/.imploid/prompts;
// installedDefaultsDir is the directory bundled with the binary's
// installed command templates.
func New(homePromptsDir, installedDefaultsDir string) *Loader {
	return &Loader{homePromptsDir: homePromptsDir, installedDefaults: installedDefaultsDir}
}

// candidates builds the precedence-ordered candidate file list for
// (processor, override).
func (l *Loader) candidates(processor model.ProcessorName, override string) []string {
	if override != "" {
		if filepath.IsAbs(override) || strings.HasPrefix(override, "~/") {
			path := expandHome(override)
			if filepath.Ext(path) == "" {
				path += ".md"
			}
			return []string{path}
		}
		return []string{
			filepath.Join(l.homePromptsDir, override+".md"),
			filepath.Join(l.installedDefaults, override+".md"),
		}
	}
	name := string(processor) + "-default.md"
	return []string{
		filepath.Join(l.homePromptsDir, name),
		filepath.Join(l.installedDefaults, name),
	}
}

// Load resolves (processor, issueNumber, override) to prompt text with
// ${issueNumber} substituted.
func (l *Loader) Load(processor model.ProcessorName, issueNumber int, override string) (string, error) {
	candidates := l.candidates(processor, override)

	var chosen string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			chosen = c
			break
		}
	}
	if chosen == "" {
		displayName := override
		if displayName == "" {
			displayName = string(processor) + "-default"
		}
		return "", &imperrors.PromptNotFound{DisplayName: displayName, Candidates: candidates}
	}

	text, err := l.readCached(chosen)
	if err != nil {
		return "", err
	}

	return strings.ReplaceAll(text, issueNumberToken, strconv.Itoa(issueNumber)), nil
}

func (l *Loader) readCached(path string) (string, error) {
	if cached, ok := l.cache.Load(path); ok {
		return cached.(string), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &imperrors.IOError{Op: "read", Path: path, Err: err}
	}
	text := string(data)
	l.cache.Store(path, text)
	return text, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
