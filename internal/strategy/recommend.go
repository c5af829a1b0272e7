package strategy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/aether-platform/aether-lens/internal/diff"
)

var (
	frontendExts = []string{".html", ".css", ".scss", ".astro", ".jsx", ".tsx", ".js", ".ts", ".vue", ".svelte"}
	backendExts  = []string{".go", ".py", ".rs", ".java", ".rb", ".sql"}
)

// HeuristicRecommender classifies the diff by touched file extensions and
// proposes matching registry strategies. It stands in when no external
// collaborator is configured.
type HeuristicRecommender struct {
	registry *Registry
}

func NewHeuristicRecommender(registry *Registry) *HeuristicRecommender {
	return &HeuristicRecommender{registry: registry}
}

// Recommend implements Recommender.
func (h *HeuristicRecommender) Recommend(ctx context.Context, payload diff.Payload, instruction string) (Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}

	touched := touchedFiles(payload.Content)
	frontend := matchesAny(touched, frontendExts)
	backend := matchesAny(touched, backendExts)

	changeType := "unknown"
	switch {
	case frontend && backend:
		changeType = "mixed"
	case frontend:
		changeType = "frontend"
	case backend:
		changeType = "backend"
	}

	var names []string
	if frontend || changeType == "unknown" {
		for _, s := range h.registry.OfKind(KindVisual) {
			names = append(names, s.Name)
		}
	}
	if backend {
		if _, err := h.registry.Lookup("command:build"); err == nil {
			names = append(names, "command:build")
		}
	}
	if len(names) == 0 {
		names = []string{"visual:desktop"}
	}

	reasoning := fmt.Sprintf("%s change across %d files", changeType, len(touched))
	if instruction != "" {
		reasoning += "; instruction: " + instruction
	}

	return Recommendation{
		ChangeType: changeType,
		Analysis:   fmt.Sprintf("%d touched files classified as %s", len(touched), changeType),
		Strategies: names,
		Reasoning:  reasoning,
	}, nil
}

// touchedFiles extracts changed paths from a unified patch.
func touchedFiles(content string) []string {
	var files []string
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ b/"):
			files = append(files, strings.TrimPrefix(line, "+++ b/"))
		case strings.HasPrefix(line, "diff --git a/"):
			// Covers renames and binary changes that carry no +++ line.
			rest := strings.TrimPrefix(line, "diff --git a/")
			if i := strings.Index(rest, " b/"); i >= 0 {
				files = append(files, rest[i+3:])
			}
		}
	}
	return lo.Uniq(files)
}

func matchesAny(files, exts []string) bool {
	return lo.SomeBy(files, func(f string) bool {
		return lo.Contains(exts, strings.ToLower(filepath.Ext(f)))
	})
}
