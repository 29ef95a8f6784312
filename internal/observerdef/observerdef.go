// Package observerdef loads observer definitions from markdown files with a
// YAML frontmatter block, the same frontmatter-delimited-markdown convention
// the teacher uses for skills (internal/skills/loader.go). It is a
// peripheral concern: the core dispatch path only ever consumes the common
// ObserverBinding.FullInstruction() surface a loaded definition is converted
// into. See SPEC_FULL.md §4.8.
package observerdef

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"sentinel/internal/model"
)

const frontmatterDelim = "---"

var (
	codeBlockPattern = regexp.MustCompile("```[\\s\\S]*?```|`[^`]+`")
	mentionPattern   = regexp.MustCompile(`@[\w:/.@-]+`)
)

// ContextFile is one @-mention resolved to file content.
type ContextFile struct {
	Path          string
	Content       string
	SourceMention string
}

// Definition is a fully loaded observer definition with resolved @-mentions.
type Definition struct {
	Name         string
	Role         string
	Focus        string
	Model        string
	Timeout      int
	Tools        []string
	Instruction  string // markdown body as written; resolved @-mentions live in ContextFiles
	ContextFiles []ContextFile
}

// FullInstruction matches model.ObserverBinding.FullInstruction: the body
// with resolved context files appended as fenced context_file blocks.
func (d Definition) FullInstruction() string {
	if len(d.ContextFiles) == 0 {
		return d.Instruction
	}
	parts := make([]string, 0, len(d.ContextFiles))
	for _, cf := range d.ContextFiles {
		parts = append(parts, fmt.Sprintf("<context_file path=%q>\n%s\n</context_file>", cf.Path, cf.Content))
	}
	return d.Instruction + "\n\n---\n\n" + strings.Join(parts, "\n\n")
}

// ToBinding adapts a loaded Definition into the model.ObserverBinding shape
// the runner and scheduler consume, merging in the watch spec from
// configuration (the definition file itself carries no watch clause).
func (d Definition) ToBinding(watch []model.WatchSpec) model.ObserverBinding {
	return model.ObserverBinding{
		Name:        d.Name,
		Role:        d.Role,
		Focus:       d.Focus,
		Model:       d.Model,
		Timeout:     d.Timeout,
		Enabled:     true,
		Watch:       watch,
		Kind:        model.ObserverLoaded,
		Instruction: d.FullInstruction(),
		Tools:       d.Tools,
	}
}

// Loader loads and lazily caches observer definitions from disk, keyed by
// resolved path. Loading is sync.Once-guarded per path and append-only for
// the lifetime of the process (SPEC_FULL.md §4.8, §5).
type Loader struct {
	// @-mentions resolve relative to the directory containing the
	// definition file.
	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	def  Definition
	err  error
}

// NewLoader returns an empty Loader.
func NewLoader() *Loader {
	return &Loader{cache: map[string]*cacheEntry{}}
}

// Load resolves ref to a file (trying ref and ref+".md" under baseDir),
// parses it, and resolves its @-mentions relative to its own directory. A
// failed load is logged and returned as an error; the error is cached with
// the entry, so later loads of the same path return it again. The
// orchestrator skips such an observer when it builds its bindings rather
// than failing.
func (l *Loader) Load(baseDir, ref string) (Definition, error) {
	path, err := resolvePath(baseDir, ref)
	if err != nil {
		return Definition{}, err
	}

	l.mu.Lock()
	entry, ok := l.cache[path]
	if !ok {
		entry = &cacheEntry{}
		l.cache[path] = entry
	}
	l.mu.Unlock()

	entry.once.Do(func() {
		entry.def, entry.err = loadFile(path)
		if entry.err != nil {
			log.Warn().Err(entry.err).Str("path", path).Msg("observerdef_load_failed")
		}
	})
	return entry.def, entry.err
}

func resolvePath(baseDir, ref string) (string, error) {
	candidate := filepath.Join(baseDir, ref)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return filepath.Clean(candidate), nil
	}
	withExt := candidate + ".md"
	if info, err := os.Stat(withExt); err == nil && !info.IsDir() {
		return filepath.Clean(withExt), nil
	}
	return "", fmt.Errorf("observer definition not found: %s (tried %s and %s)", ref, candidate, withExt)
}

func loadFile(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read observer definition: %w", err)
	}

	fm, body, err := parseFrontmatter(string(raw))
	if err != nil {
		return Definition{}, err
	}

	obsConfig := fm.Observer
	if obsConfig.Name == "" {
		obsConfig.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if obsConfig.Model == "" {
		obsConfig.Model = "claude-3-5-haiku-latest"
	}
	if obsConfig.Timeout <= 0 {
		obsConfig.Timeout = 30
	}

	contextFiles := resolveMentions(body, filepath.Dir(path))

	return Definition{
		Name:         obsConfig.Name,
		Role:         obsConfig.Role,
		Focus:        obsConfig.Focus,
		Model:        obsConfig.Model,
		Timeout:      obsConfig.Timeout,
		Tools:        fm.Tools,
		Instruction:  strings.TrimSpace(body),
		ContextFiles: contextFiles,
	}, nil
}

type frontmatterObserver struct {
	Name    string `yaml:"name"`
	Role    string `yaml:"role"`
	Focus   string `yaml:"focus"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"`
}

type frontmatter struct {
	Observer frontmatterObserver `yaml:"observer"`
	Tools    []string            `yaml:"tools"`
}

// parseFrontmatter splits a "---\n...\n---\n" prefixed document into its
// frontmatter and body, grounded on the teacher's skills.extractFrontmatter.
func parseFrontmatter(text string) (frontmatter, string, error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		return frontmatter{}, text, fmt.Errorf("missing YAML frontmatter delimited by ---")
	}

	var fmLines []string
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			end = i
			break
		}
		fmLines = append(fmLines, lines[i])
	}
	if end == -1 {
		return frontmatter{}, text, fmt.Errorf("missing closing --- for frontmatter")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(fmLines, "\n")), &fm); err != nil {
		return frontmatter{}, text, fmt.Errorf("invalid frontmatter YAML: %w", err)
	}
	if fm.Observer.Name == "" && fm.Observer.Role == "" && fm.Observer.Focus == "" {
		// still valid: frontmatter may be sparse, name falls back to filename.
	}

	body := strings.Join(lines[end+1:], "\n")
	return fm, body, nil
}

// parseMentions extracts @-mentions from text, skipping fenced/inline code.
func parseMentions(text string) []string {
	stripped := codeBlockPattern.ReplaceAllString(text, "")
	return mentionPattern.FindAllString(stripped, -1)
}

// resolveMentions resolves each @-mention in text to a ContextFile relative
// to baseDir, skipping unresolvable or duplicate mentions rather than
// failing the whole load.
func resolveMentions(text, baseDir string) []ContextFile {
	mentions := parseMentions(text)
	if len(mentions) == 0 {
		return nil
	}

	var files []ContextFile
	seen := map[string]bool{}
	for _, mention := range mentions {
		ref := strings.TrimPrefix(mention, "@")
		path, err := resolvePath(baseDir, ref)
		if err != nil || seen[path] {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		seen[path] = true
		files = append(files, ContextFile{Path: path, Content: string(content), SourceMention: mention})
	}
	return files
}

// Discover finds every observer definition file (markdown with frontmatter)
// under root, mirroring the teacher's WalkDir-based discoverSkillFiles.
func Discover(root string) []string {
	var paths []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	return paths
}
