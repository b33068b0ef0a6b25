//go:build docs

package main

import (
	"os"
	"path"
	"strings"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra/doc"

	"github.com/maxgio92/ktally/internal/settings"
	"github.com/maxgio92/ktally/pkg/cmd"
)

const (
	docsDir        = "docs"
	readmeTemplate = "README.md.tpl"
	readme         = "README.md"
	templateMarker = "{{ .CLI_REFERENCE }}"
)

// linkHandler points the root command page to the README and every
// subcommand page into docs/.
func linkHandler(filename string) string {
	if filename == settings.CmdName+".md" {
		return readme
	}
	return path.Join(docsDir, filename)
}

func noFrontMatter(string) string {
	return ""
}

func main() {
	logger := log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	root := cmd.NewCommand(cmd.NewOptions(cmd.WithLogger(logger)))
	if err := doc.GenMarkdownTreeCustom(root, docsDir, noFrontMatter, linkHandler); err != nil {
		logger.Fatal().Err(err).Msg("failed to generate CLI docs")
	}

	tpl, err := os.ReadFile(readmeTemplate)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read README template")
	}
	reference, err := os.ReadFile(path.Join(docsDir, settings.CmdName+".md"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read root command docs")
	}

	content := strings.Replace(string(tpl), templateMarker, string(reference), 1)
	if err = os.WriteFile(readme, []byte(content), 0644); err != nil {
		logger.Fatal().Err(err).Msg("failed to write README")
	}
}
