package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// envSection groups flags under one heading in .env.example.
type envSection struct {
	title string
	flags []string
}

var envSections = []envSection{
	{title: "Server", flags: []string{
		"server-host", "server-port", "server-read-timeout", "server-write-timeout", "user-header",
	}},
	{title: "YouTube", flags: []string{
		"youtube-api-key", "youtube-oembed-url", "youtube-data-api-url", "youtube-timeout", "youtube-rps",
	}},
	{title: "SoundCloud (client credentials are required for SoundCloud links)", flags: []string{
		"soundcloud-client-id", "soundcloud-client-secret", "soundcloud-token-url",
		"soundcloud-api-url", "soundcloud-oembed-url", "soundcloud-timeout", "soundcloud-rps",
	}},
	{title: "Catalog", flags: []string{
		"catalog-driver", "catalog-dsn", "url-index-capacity", "bloom-fp-rate",
		"index-warm-limit", "metadata-cache-size", "metadata-cache-ttl",
	}},
	{title: "Submission policy", flags: []string{"flood-limit-per-minute"}},
	{title: "Logging", flags: []string{"log-level"}},
}

// secretFlags are written without their value.
var secretFlags = map[string]bool{
	"youtube-api-key":          true,
	"soundcloud-client-id":     true,
	"soundcloud-client-secret": true,
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# raveview Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: RAVEVIEW_<SECTION>_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		writeEnvSection(&content, cmd, section)
	}

	return content.String()
}

func writeEnvSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")

	for _, name := range section.flags {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			continue
		}
		value := f.DefValue
		if secretFlags[name] {
			value = ""
		}
		fmt.Fprintf(content, "# %s (--%s)\n", f.Usage, name)
		fmt.Fprintf(content, "%s=%s\n", flagToEnvVar(name), value)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
