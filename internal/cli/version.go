package cli

// Build identity, set via -ldflags "-X github.com/aether-platform/aether-lens/internal/cli.Version=...".
var (
	Version = "dev"
	Commit  = "none"
)
