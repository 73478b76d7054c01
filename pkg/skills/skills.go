// Package skills implements the skills manager (C7): discovery of SKILL.md
// directories, YAML frontmatter parsing, activation, and prompt XML
// generation. Discovery reads each whole SKILL.md and keeps its body along
// with the frontmatter; activation loads only the resource list.
//
// Grounded on pkg/config/loader.go's yaml -> map -> mapstructure decode
// pipeline (parse to map[string]any, then typed decode).
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ActivatedBy identifies who triggered a skill's activation.
type ActivatedBy string

const (
	ActivatedByAuto  ActivatedBy = "Auto"
	ActivatedByAgent ActivatedBy = "Agent"
	ActivatedByUser  ActivatedBy = "User"
)

// Frontmatter is the YAML metadata block recognized at the top of a
// SKILL.md file.
type Frontmatter struct {
	Name          string   `mapstructure:"name"`
	Description   string   `mapstructure:"description"`
	License       string   `mapstructure:"license"`
	Compatibility string   `mapstructure:"compatibility"`
	AllowedTools  []string `mapstructure:"allowed_tools"`
}

// Skill is a discovered (and possibly activated) skill directory.
type Skill struct {
	Frontmatter
	Path string // directory containing SKILL.md

	Body      string
	Resources []string // relative paths under scripts/, references/, assets/

	ActivatedAt *time.Time
	ActivatedBy ActivatedBy
	ToolsGranted []string
}

// Location returns Path for prompt injection's optional `location` field.
func (s *Skill) Location() string { return s.Path }

// DiscoveryOptions filters which skills Discover surfaces.
type DiscoveryOptions struct {
	Paths   []string
	Include []string
	Exclude []string
}

func nameAllowed(name string, include, exclude []string) bool {
	for _, ex := range exclude {
		if ex == name {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, in := range include {
		if in == name {
			return true
		}
	}
	return false
}

// parseFrontmatter splits a SKILL.md document into its YAML frontmatter
// (between two `---` fences) and its Markdown body.
func parseFrontmatter(raw string) (Frontmatter, string, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return Frontmatter{}, raw, fmt.Errorf("skills: missing frontmatter fence")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return Frontmatter{}, raw, fmt.Errorf("skills: unterminated frontmatter fence")
	}

	yamlBlock := strings.Join(lines[1:end], "\n")
	body := strings.TrimPrefix(strings.Join(lines[end+1:], "\n"), "\n")

	var raw2 map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &raw2); err != nil {
		return Frontmatter{}, raw, fmt.Errorf("skills: invalid frontmatter yaml: %w", err)
	}

	if tools, ok := raw2["allowed_tools"].(string); ok {
		parts := strings.Split(tools, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		raw2["allowed_tools"] = parts
	}

	var fm Frontmatter
	if err := mapstructure.Decode(raw2, &fm); err != nil {
		return Frontmatter{}, raw, fmt.Errorf("skills: frontmatter decode failed: %w", err)
	}
	return fm, body, nil
}

// Manager discovers, activates, and tracks skills across a set of search
// paths.
type Manager struct {
	mu              sync.Mutex
	discovered      map[string]*Skill
	lastDiscoveryAt time.Time
}

// New creates an empty skills manager.
func New() *Manager {
	return &Manager{discovered: make(map[string]*Skill)}
}

// Discover walks opts.Paths, treating any directory containing a SKILL.md
// as a skill, parsing its frontmatter, and applying include/exclude
// filters by name. It replaces the manager's discovered set.
func (m *Manager) Discover(opts DiscoveryOptions) ([]*Skill, error) {
	found := make(map[string]*Skill)

	for _, root := range opts.Paths {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			skillFile := filepath.Join(path, "SKILL.md")
			data, err := os.ReadFile(skillFile)
			if err != nil {
				return nil
			}

			fm, body, err := parseFrontmatter(string(data))
			if err != nil {
				return nil // unreadable frontmatter: skip this directory
			}
			if fm.Name == "" {
				fm.Name = filepath.Base(path)
			}
			if !nameAllowed(fm.Name, opts.Include, opts.Exclude) {
				return nil
			}

			found[fm.Name] = &Skill{Frontmatter: fm, Path: path, Body: body}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("skills: discovery walk failed for %q: %w", root, err)
		}
	}

	m.mu.Lock()
	m.discovered = found
	m.lastDiscoveryAt = time.Now()
	m.mu.Unlock()

	return m.List(), nil
}

// List returns every discovered skill, sorted by name.
func (m *Manager) List() []*Skill {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.discovered))
	for name := range m.discovered {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Skill, 0, len(names))
	for _, name := range names {
		out = append(out, m.discovered[name])
	}
	return out
}

func isTraversal(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

var resourceDirs = []string{"scripts", "references", "assets"}

// Activate loads resource files under scripts/, references/, assets/ for
// the named skill and records activation provenance. Resource loading
// rejects any path containing ".." as a traversal attempt.
func (m *Manager) Activate(name string, by ActivatedBy, toolsGranted []string) (*Skill, error) {
	m.mu.Lock()
	skill, ok := m.discovered[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("skills: %q not discovered", name)
	}

	var resources []string
	for _, dir := range resourceDirs {
		resourceRoot := filepath.Join(skill.Path, dir)
		_ = filepath.WalkDir(resourceRoot, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(skill.Path, path)
			if relErr != nil || isTraversal(rel) {
				return nil // path-traversal guard: skip, do not surface
			}
			resources = append(resources, rel)
			return nil
		})
	}

	now := time.Now()
	skill.Resources = resources
	skill.ActivatedAt = &now
	skill.ActivatedBy = by
	skill.ToolsGranted = toolsGranted
	return skill, nil
}

// PersistedActivation is one entry of Manager's activated-list persisted
// state.
type PersistedActivation struct {
	Name         string      `json:"name"`
	ActivatedAt  time.Time   `json:"activated_at"`
	ActivatedBy  ActivatedBy `json:"activated_by"`
	ToolsGranted []string    `json:"tools_granted,omitempty"`
}

// PersistedState is the {discovered, activated, last_discovery_at} shape
// written to an agent's checkpoint metadata.
type PersistedState struct {
	Discovered      []string              `json:"discovered"`
	Activated       []PersistedActivation `json:"activated"`
	LastDiscoveryAt time.Time             `json:"last_discovery_at"`
}

// State snapshots the manager's current discovery/activation bookkeeping.
func (m *Manager) State() PersistedState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := PersistedState{LastDiscoveryAt: m.lastDiscoveryAt}
	names := make([]string, 0, len(m.discovered))
	for name := range m.discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	state.Discovered = names

	for _, name := range names {
		skill := m.discovered[name]
		if skill.ActivatedAt == nil {
			continue
		}
		state.Activated = append(state.Activated, PersistedActivation{
			Name:         name,
			ActivatedAt:  *skill.ActivatedAt,
			ActivatedBy:  skill.ActivatedBy,
			ToolsGranted: skill.ToolsGranted,
		})
	}
	return state
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string { return xmlEscaper.Replace(s) }

// AvailableSkillsXML renders the <available_skills> fragment listing every
// discovered skill, for injection into the system prompt.
func (m *Manager) AvailableSkillsXML() string {
	var b strings.Builder
	b.WriteString("<available_skills>\n")
	for _, skill := range m.List() {
		b.WriteString("  <skill>\n")
		fmt.Fprintf(&b, "    <name>%s</name>\n", escapeXML(skill.Name))
		fmt.Fprintf(&b, "    <description>%s</description>\n", escapeXML(skill.Description))
		if skill.Path != "" {
			fmt.Fprintf(&b, "    <location>%s</location>\n", escapeXML(skill.Location()))
		}
		b.WriteString("  </skill>\n")
	}
	b.WriteString("</available_skills>")
	return b.String()
}

// Watch starts an fsnotify watcher on each directory in opts.Paths (not
// recursively) and re-runs Discover on any event in those directories, until
// stop is closed. Changes to a SKILL.md inside a skill's own subdirectory
// raise no event and do not trigger re-discovery. Discovery errors are sent on the returned channel;
// callers that don't care may simply range and discard.
func (m *Manager) Watch(opts DiscoveryOptions, stop <-chan struct{}) (<-chan error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("skills: watcher init failed: %w", err)
	}

	for _, root := range opts.Paths {
		if err := watcher.Add(root); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("skills: watch %q failed: %w", root, err)
		}
	}

	errs := make(chan error, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, err := m.Discover(opts); err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return errs, nil
}

// SkillInstructionsXML renders the <skill_instructions> fragment emitted as
// a reminder after activation: the skill's body plus a resource manifest.
func SkillInstructionsXML(skill *Skill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<skill_instructions name=%q>\n", escapeXML(skill.Name))
	b.WriteString(escapeXML(skill.Body))
	if len(skill.Resources) > 0 {
		b.WriteString("\n<resources>\n")
		for _, r := range skill.Resources {
			fmt.Fprintf(&b, "  <resource>%s</resource>\n", escapeXML(r))
		}
		b.WriteString("</resources>")
	}
	b.WriteString("\n</skill_instructions>")
	return b.String()
}
