// Package strategy resolves what a run verifies: the ordered plan of visual
// and command strategies.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Kind classifies how a strategy executes.
type Kind string

const (
	KindVisual  Kind = "visual"
	KindCommand Kind = "command"
)

// Auto asks the recommender to pick strategies from the change payload.
const Auto = "auto"

// ErrUnknownStrategy is a configuration error: a plan entry the local
// registry cannot satisfy, whether it came from the config file or from the
// recommender.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is one executable verification step.
type Strategy struct {
	Name  string
	Kind  Kind
	Label string

	// Visual strategies.
	ViewportW int
	ViewportH int
	Path      string

	// Command strategies.
	Command string
}

// Source records how a plan was derived.
type Source string

const (
	SourceConfig   Source = "config"
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Plan is the ordered strategy sequence for one run.
type Plan struct {
	Source     Source
	Strategies []Strategy
}

// Names returns the plan's strategy names in order.
func (p Plan) Names() []string {
	return lo.Map(p.Strategies, func(s Strategy, _ int) string { return s.Name })
}

// VisualTarget is a named viewport variant from configuration.
type VisualTarget struct {
	ViewportW int
	ViewportH int
	Path      string
}

// Registry holds the locally known strategies. Names follow the
// "<kind>:<label>" form, e.g. visual:desktop or command:build.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry builds the registry from configured visual targets and
// commands. Built-in defaults register first so configuration overrides
// them by label.
func NewRegistry(targets map[string]VisualTarget, commands map[string]string) *Registry {
	r := &Registry{byName: map[string]Strategy{}}

	r.addVisual("desktop", VisualTarget{ViewportW: 1280, ViewportH: 720, Path: "/"})
	r.addVisual("mobile", VisualTarget{ViewportW: 375, ViewportH: 667, Path: "/"})
	r.addCommand("build", "npm run build")

	for label, tgt := range targets {
		r.addVisual(label, tgt)
	}
	for label, cmd := range commands {
		r.addCommand(label, cmd)
	}
	return r
}

func (r *Registry) addVisual(label string, tgt VisualTarget) {
	path := tgt.Path
	if path == "" {
		path = "/"
	}
	name := string(KindVisual) + ":" + label
	r.byName[name] = Strategy{
		Name:      name,
		Kind:      KindVisual,
		Label:     label,
		ViewportW: tgt.ViewportW,
		ViewportH: tgt.ViewportH,
		Path:      path,
	}
}

func (r *Registry) addCommand(label, command string) {
	name := string(KindCommand) + ":" + label
	r.byName[name] = Strategy{Name: name, Kind: KindCommand, Label: label, Command: command}
}

// Lookup resolves a plan entry by name.
func (r *Registry) Lookup(name string) (Strategy, error) {
	s, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q (known: %s)",
			ErrUnknownStrategy, name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

// Names lists known strategy names, sorted.
func (r *Registry) Names() []string {
	names := lo.Keys(r.byName)
	sort.Strings(names)
	return names
}

// OfKind lists known strategies of one kind, sorted by name.
func (r *Registry) OfKind(kind Kind) []Strategy {
	list := lo.Filter(lo.Values(r.byName), func(s Strategy, _ int) bool { return s.Kind == kind })
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
