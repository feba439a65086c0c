package viewport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
)

// Profile is a named viewport size.
type Profile struct {
	Name   string `json:"name" yaml:"name"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

func (p Profile) Size() browser.Size { return browser.Size{Width: p.Width, Height: p.Height} }

func (p Profile) String() string { return fmt.Sprintf("%s(%dx%d)", p.Name, p.Width, p.Height) }

var (
	Mobile  = Profile{Name: "mobile", Width: 375, Height: 667}
	Tablet  = Profile{Name: "tablet", Width: 768, Height: 1024}
	Desktop = Profile{Name: "desktop", Width: 1280, Height: 800}
)

// Set is an ordered, name-keyed collection of profiles.
type Set struct {
	profiles *orderedmap.OrderedMap[string, Profile]
}

// NewSet builds a set in declaration order. Later duplicates replace earlier ones in place.
func NewSet(profiles ...Profile) *Set {
	s := &Set{profiles: orderedmap.New[string, Profile]()}
	for _, p := range profiles {
		s.profiles.Set(strings.ToLower(p.Name), p)
	}
	return s
}

// Standard returns mobile, tablet and desktop.
func Standard() *Set {
	return NewSet(Mobile, Tablet, Desktop)
}

// Add registers p, validating its dimensions.
func (s *Set) Add(p Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("viewport profile requires a name")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("viewport profile %s has invalid size %dx%d", p.Name, p.Width, p.Height)
	}
	s.profiles.Set(strings.ToLower(p.Name), p)
	return nil
}

// Get returns the profile called name.
func (s *Set) Get(name string) (Profile, bool) {
	return s.profiles.Get(strings.ToLower(strings.TrimSpace(name)))
}

// Names returns profile names in declaration order.
func (s *Set) Names() []string {
	out := make([]string, 0, s.profiles.Len())
	for pair := s.profiles.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Name)
	}
	return out
}

// Select resolves names in the order given. An empty list selects fallback.
func (s *Set) Select(names []string, fallback Profile) ([]Profile, error) {
	if len(names) == 0 {
		return []Profile{fallback}, nil
	}
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		if strings.EqualFold(name, "all") {
			for pair := s.profiles.Oldest(); pair != nil; pair = pair.Next() {
				out = append(out, pair.Value)
			}
			continue
		}
		p, ok := s.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown viewport profile %q (known: %s)", name, strings.Join(s.Names(), ", "))
		}
		out = append(out, p)
	}
	return out, nil
}

// Body runs once per applied profile.
type Body func(ctx context.Context, profile Profile) error

// Runner replays a body across profiles on one page.
type Runner struct {
	Default Profile
	logger  *zap.Logger
}

// NewRunner returns a runner that restores def after a sweep.
func NewRunner(def Profile, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Default: def, logger: logger}
}

// Apply resizes page to p and confirms the new size took effect before returning.
func (r *Runner) Apply(page browser.Page, p Profile) error {
	if err := page.SetViewportSize(p.Width, p.Height); err != nil {
		return fault.Infrastructure("apply viewport "+p.Name, err)
	}
	if size, ok := page.ViewportSize(); ok && (size.Width != p.Width || size.Height != p.Height) {
		return fault.Infrastructure("apply viewport "+p.Name, fmt.Errorf("viewport is %s, want %s", size, p.Size()))
	}
	return nil
}

// ForEachViewport applies each profile in order and runs body under it. Profiles never
// overlap on one page. A fatal body error stops the sweep; other errors are joined and
// the sweep continues. The default profile is restored unless it was the last one applied.
func (r *Runner) ForEachViewport(ctx context.Context, page browser.Page, profiles []Profile, body Body) error {
	var (
		errs []error
		last *Profile
	)
	for i := range profiles {
		p := profiles[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Apply(page, p); err != nil {
			errs = append(errs, err)
			break
		}
		last = &p
		r.logger.Debug("viewport applied", zap.String("viewport", p.Name), zap.Int("width", p.Width), zap.Int("height", p.Height))
		if err := body(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("viewport %s: %w", p.Name, err))
			if fault.IsFatal(err) {
				break
			}
		}
	}
	if last != nil && *last != r.Default && r.Default.Width > 0 {
		if err := page.SetViewportSize(r.Default.Width, r.Default.Height); err != nil && !browser.IsClosed(err) {
			r.logger.Warn("restore default viewport failed", zap.String("viewport", r.Default.Name), zap.Error(err))
		}
	}
	return errors.Join(errs...)
}
