// Package knowledge loads the per-language profiles that drive formatting
// order and repair prompts.
//
// Profiles are plain YAML records. Built-in profiles are embedded in the
// binary; a file named <language>.yaml in the override directory replaces the
// built-in one. Profiles are loaded on first use and then shared, read-only,
// by every worker for the rest of the process.
package knowledge

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/runger/clipfix/internal/lang"
)

//go:embed profiles/*.yaml
var builtin embed.FS

// CodePlaceholder marks where the broken code goes in a repair prompt.
const CodePlaceholder = "{code}"

// DefaultMaxTokens bounds repair replies when a profile sets no budget.
const DefaultMaxTokens = 2048

// ErrInvalidProfile is returned for profiles that cannot drive a repair.
var ErrInvalidProfile = errors.New("invalid knowledge profile")

// Profile is the behaviour bundle for one language.
type Profile struct {
	Language      lang.Language `yaml:"language"`
	Aliases       []string      `yaml:"aliases,omitempty"`
	CommentPrefix string        `yaml:"comment_prefix,omitempty"`
	Formatters    []string      `yaml:"formatters,omitempty"`
	MaxTokens     int           `yaml:"max_tokens,omitempty"`
	RepairPrompt  string        `yaml:"repair_prompt"`
	StyleRules    []string      `yaml:"style_rules,omitempty"`
	CommonErrors  []string      `yaml:"common_errors,omitempty"`

	// Generic is set on the fallback profile used for unknown languages.
	Generic bool `yaml:"-"`
	// Source names where the profile was loaded from, for diagnostics.
	Source string `yaml:"-"`
}

// Validate checks that the repair prompt has exactly one code placeholder.
func (p *Profile) Validate() error {
	switch n := strings.Count(p.RepairPrompt, CodePlaceholder); n {
	case 1:
	case 0:
		return fmt.Errorf("%w: repair_prompt has no %s placeholder", ErrInvalidProfile, CodePlaceholder)
	default:
		return fmt.Errorf("%w: repair_prompt has %d %s placeholders", ErrInvalidProfile, n, CodePlaceholder)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must be >= 0", ErrInvalidProfile)
	}
	return nil
}

// Render fills the repair prompt. Metadata placeholders are expanded before
// the code is inserted so that braces inside the code are never touched.
func (p *Profile) Render(code string) string {
	r := strings.NewReplacer(
		"{language}", p.Language.String(),
		"{style_rules}", bullets(p.StyleRules),
		"{common_errors}", bullets(p.CommonErrors),
	)
	prompt := r.Replace(p.RepairPrompt)
	return strings.Replace(prompt, CodePlaceholder, code, 1)
}

// Budget returns the output token budget for repairs, falling back to def.
func (p *Profile) Budget(def int) int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	if def > 0 {
		return def
	}
	return DefaultMaxTokens
}

// HasCommentSyntax reports whether failure annotations can be written.
func (p *Profile) HasCommentSyntax() bool {
	return p.CommentPrefix != ""
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}

// Store is a lazily populated, concurrency-safe profile table.
type Store struct {
	overrideDir string
	logger      *slog.Logger
	group       singleflight.Group
	profiles    map[lang.Language]*Profile
	mu          sync.RWMutex
}

// NewStore creates a store that prefers profiles in overrideDir (may be empty).
func NewStore(overrideDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		overrideDir: overrideDir,
		logger:      logger,
		profiles:    make(map[lang.Language]*Profile),
	}
}

// Get returns the profile for l, loading it on first request. Unknown
// languages and unreadable profiles resolve to the generic profile, so Get
// never returns nil.
func (s *Store) Get(l lang.Language) *Profile {
	s.mu.RLock()
	p, ok := s.profiles[l]
	s.mu.RUnlock()
	if ok {
		return p
	}

	v, _, _ := s.group.Do(string(l), func() (any, error) {
		s.mu.RLock()
		cached, ok := s.profiles[l]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		loaded := s.load(l)
		s.mu.Lock()
		s.profiles[l] = loaded
		s.mu.Unlock()
		return loaded, nil
	})
	return v.(*Profile)
}

// Loaded returns the languages whose profiles are currently cached.
func (s *Store) Loaded() []lang.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lang.Language, 0, len(s.profiles))
	for l := range s.profiles {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) load(l lang.Language) *Profile {
	if l != lang.Unknown && s.overrideDir != "" {
		path := filepath.Join(s.overrideDir, string(l)+".yaml")
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			p, perr := parse(data, l, path)
			if perr == nil {
				s.logger.Debug("loaded knowledge profile", "language", l, "source", path)
				return p
			}
			s.logger.Warn("ignoring knowledge profile override", "path", path, "error", perr)
		case !errors.Is(err, fs.ErrNotExist):
			s.logger.Warn("failed to read knowledge profile override", "path", path, "error", err)
		}
	}

	if l != lang.Unknown {
		name := "profiles/" + string(l) + ".yaml"
		if data, err := builtin.ReadFile(name); err == nil {
			p, perr := parse(data, l, "builtin:"+name)
			if perr == nil {
				return p
			}
			s.logger.Warn("invalid builtin knowledge profile", "language", l, "error", perr)
		}
	}

	return s.generic(l)
}

func (s *Store) generic(l lang.Language) *Profile {
	p := &Profile{}
	data, err := builtin.ReadFile("profiles/generic.yaml")
	if err == nil {
		err = yaml.Unmarshal(data, p)
	}
	if err != nil || p.Validate() != nil {
		p = &Profile{
			CommentPrefix: "#",
			RepairPrompt:  "Fix syntax errors in this {language} code. Output only valid code.\n\nCode:\n{code}\n\nFixed code:",
		}
	}
	p.Language = l
	p.Generic = true
	p.Formatters = nil
	p.Source = "builtin:generic"
	return p
}

func parse(data []byte, l lang.Language, source string) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if p.Language == lang.Unknown {
		p.Language = l
	}
	if p.Language != l {
		return nil, fmt.Errorf("%w: file for %s declares language %s", ErrInvalidProfile, l, p.Language)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Source = source
	return &p, nil
}

// Builtin returns the embedded profile for l without consulting overrides.
func Builtin(l lang.Language) (*Profile, error) {
	data, err := builtin.ReadFile("profiles/" + string(l) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no builtin profile for %s: %w", l, err)
	}
	return parse(data, l, "builtin")
}
