package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/diff"
)

func nopLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

type cannedRecommender struct {
	rec Recommendation
	err error
}

func (c *cannedRecommender) Recommend(context.Context, diff.Payload, string) (Recommendation, error) {
	return c.rec, c.err
}

type hangingRecommender struct{}

func (hangingRecommender) Recommend(ctx context.Context, _ diff.Payload, _ string) (Recommendation, error) {
	<-ctx.Done()
	return Recommendation{}, ctx.Err()
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry(nil, nil)

	desktop, err := r.Lookup("visual:desktop")
	require.NoError(t, err)
	assert.Equal(t, KindVisual, desktop.Kind)
	assert.Equal(t, 1280, desktop.ViewportW)
	assert.Equal(t, 720, desktop.ViewportH)
	assert.Equal(t, "/", desktop.Path)

	mobile, err := r.Lookup("visual:mobile")
	require.NoError(t, err)
	assert.Equal(t, 375, mobile.ViewportW)
	assert.Equal(t, 667, mobile.ViewportH)

	build, err := r.Lookup("command:build")
	require.NoError(t, err)
	assert.Equal(t, KindCommand, build.Kind)
	assert.Equal(t, "npm run build", build.Command)

	assert.Equal(t, []string{"command:build", "visual:desktop", "visual:mobile"}, r.Names())
}

func TestRegistryConfigOverridesAndAdds(t *testing.T) {
	r := NewRegistry(
		map[string]VisualTarget{
			"desktop": {ViewportW: 1920, ViewportH: 1080, Path: "/home"},
			"tablet":  {ViewportW: 768, ViewportH: 1024},
		},
		map[string]string{"test": "npm test"},
	)

	desktop, err := r.Lookup("visual:desktop")
	require.NoError(t, err)
	assert.Equal(t, 1920, desktop.ViewportW)
	assert.Equal(t, "/home", desktop.Path)

	tablet, err := r.Lookup("visual:tablet")
	require.NoError(t, err)
	assert.Equal(t, "/", tablet.Path, "empty path defaults to /")

	test, err := r.Lookup("command:test")
	require.NoError(t, err)
	assert.Equal(t, "npm test", test.Command)
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry(nil, nil)
	_, err := r.Lookup("visual:widescreen")
	require.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "visual:widescreen")
}

func TestResolveExplicitPlanVerbatim(t *testing.T) {
	r := NewResolver(NewRegistry(nil, nil), &cannedRecommender{}, nil, time.Second, nopLog())

	plan, rec, err := r.Resolve(context.Background(),
		[]string{"command:build", "visual:desktop"}, diff.Payload{}, "")
	require.NoError(t, err)
	assert.Equal(t, SourceConfig, plan.Source)
	assert.Equal(t, []string{"command:build", "visual:desktop"}, plan.Names())
	assert.Empty(t, rec.Strategies)
}

func TestResolveExplicitUnknownEntry(t *testing.T) {
	r := NewResolver(NewRegistry(nil, nil), &cannedRecommender{}, nil, time.Second, nopLog())

	_, _, err := r.Resolve(context.Background(),
		[]string{"visual:desktop", "visual:nope"}, diff.Payload{}, "")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestResolveAutoUsesRecommendation(t *testing.T) {
	rec := &cannedRecommender{rec: Recommendation{
		ChangeType: "frontend",
		Strategies: []string{"visual:mobile", "command:build"},
	}}
	r := NewResolver(NewRegistry(nil, nil), rec, nil, time.Second, nopLog())

	plan, got, err := r.Resolve(context.Background(), []string{"auto"}, diff.Payload{}, "focus on nav")
	require.NoError(t, err)
	assert.Equal(t, SourceAI, plan.Source)
	assert.Equal(t, []string{"visual:mobile", "command:build"}, plan.Names())
	assert.Equal(t, "frontend", got.ChangeType)
}

func TestResolveAutoFallsBackOnError(t *testing.T) {
	rec := &cannedRecommender{err: errors.New("model overloaded")}
	r := NewResolver(NewRegistry(nil, nil), rec, []string{"visual:desktop"}, time.Second, nopLog())

	plan, got, err := r.Resolve(context.Background(), []string{"auto"}, diff.Payload{}, "")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, plan.Source)
	assert.Equal(t, []string{"visual:desktop"}, plan.Names())
	assert.Empty(t, got.Strategies)
}

func TestResolveAutoFallsBackOnEmptyRecommendation(t *testing.T) {
	r := NewResolver(NewRegistry(nil, nil), &cannedRecommender{}, []string{"command:build"}, time.Second, nopLog())

	plan, _, err := r.Resolve(context.Background(), []string{"auto"}, diff.Payload{}, "")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, plan.Source)
	assert.Equal(t, []string{"command:build"}, plan.Names())
}

func TestResolveAutoTimeoutFallsBack(t *testing.T) {
	r := NewResolver(NewRegistry(nil, nil), hangingRecommender{}, nil, 20*time.Millisecond, nopLog())

	start := time.Now()
	plan, _, err := r.Resolve(context.Background(), []string{"auto"}, diff.Payload{}, "")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, plan.Source)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolveAutoUnknownRecommendationIsConfigError(t *testing.T) {
	rec := &cannedRecommender{rec: Recommendation{Strategies: []string{"visual:hologram"}}}
	r := NewResolver(NewRegistry(nil, nil), rec, nil, time.Second, nopLog())

	_, got, err := r.Resolve(context.Background(), []string{"auto"}, diff.Payload{}, "")
	require.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Equal(t, []string{"visual:hologram"}, got.Strategies)
}

func TestHeuristicRecommender(t *testing.T) {
	reg := NewRegistry(nil, nil)
	h := NewHeuristicRecommender(reg)
	ctx := context.Background()

	t.Run("frontend change picks visual strategies", func(t *testing.T) {
		payload := diff.Payload{Content: "diff --git a/src/pages/index.astro b/src/pages/index.astro\n+++ b/src/pages/index.astro\n+<h1>hi</h1>\n"}
		rec, err := h.Recommend(ctx, payload, "")
		require.NoError(t, err)
		assert.Equal(t, "frontend", rec.ChangeType)
		assert.Equal(t, []string{"visual:desktop", "visual:mobile"}, rec.Strategies)
	})

	t.Run("backend change picks build command", func(t *testing.T) {
		payload := diff.Payload{Content: "+++ b/internal/server/handler.go\n"}
		rec, err := h.Recommend(ctx, payload, "")
		require.NoError(t, err)
		assert.Equal(t, "backend", rec.ChangeType)
		assert.Equal(t, []string{"command:build"}, rec.Strategies)
	})

	t.Run("mixed change picks both", func(t *testing.T) {
		payload := diff.Payload{Content: "+++ b/site/app.css\n+++ b/api/users.go\n"}
		rec, err := h.Recommend(ctx, payload, "check everything")
		require.NoError(t, err)
		assert.Equal(t, "mixed", rec.ChangeType)
		assert.Equal(t, []string{"visual:desktop", "visual:mobile", "command:build"}, rec.Strategies)
		assert.Contains(t, rec.Reasoning, "check everything")
	})

	t.Run("unclassified change still yields a plan", func(t *testing.T) {
		payload := diff.Payload{Content: "+++ b/README.md\n"}
		rec, err := h.Recommend(ctx, payload, "")
		require.NoError(t, err)
		assert.Equal(t, "unknown", rec.ChangeType)
		assert.NotEmpty(t, rec.Strategies)
	})

	t.Run("canceled context reports unavailable", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := h.Recommend(canceled, diff.Payload{}, "")
		require.ErrorIs(t, err, ErrAIUnavailable)
	})
}
