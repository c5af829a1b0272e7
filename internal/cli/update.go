package cli

import (
	"fmt"
)

// UpdateCmd shows how to upgrade aether-lens
type UpdateCmd struct{}

const (
	homebrewCmd  = "brew update && brew upgrade aether-lens"
	goInstallCmd = "go install github.com/aether-platform/aether-lens/cmd/aether-lens@latest"
	releasesURL  = "https://github.com/aether-platform/aether-lens/releases"
)

// Run executes the update command
func (c *UpdateCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		newRenderer(globals).event(map[string]any{
			"type":            "update",
			"current_version": Version,
			"commit":          Commit,
			"homebrew":        homebrewCmd,
			"go_install":      goInstallCmd,
			"releases_url":    releasesURL,
		})
		return nil
	}

	fmt.Fprintln(globals.Stdout, "aether-lens update instructions")
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintf(globals.Stdout, "Current version: %s (%s)\n", Version, Commit)
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "To upgrade via Homebrew:")
	fmt.Fprintf(globals.Stdout, "  %s\n", homebrewCmd)
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "To upgrade via Go:")
	fmt.Fprintf(globals.Stdout, "  %s\n", goInstallCmd)
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "For release notes, see:")
	fmt.Fprintf(globals.Stdout, "  %s\n", releasesURL)

	return nil
}
