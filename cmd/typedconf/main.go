package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/typedconf/typedconf/pkg/config"
	"github.com/typedconf/typedconf/pkg/logger"
)

var (
	keyStyle    = lipgloss.NewStyle().Bold(true)
	winnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	chainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "typedconf",
		Short:         "Layered configuration resolution",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newExplainCmd())
	return root
}

type explainFlags struct {
	files        []string
	required     []string
	profileFiles []string
	dotenv       string
	envPrefix    string
	envDelimiter string
	profile      string
	overrides    []string
	debug        bool
}

func newExplainCmd() *cobra.Command {
	flags := &explainFlags{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Merge the given sources and print every key with its winner and provenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExplain(cmd, flags)
		},
	}
	cmd.Flags().StringArrayVar(&flags.files, "file", nil, "TOML file layer, lowest to highest precedence (repeatable)")
	cmd.Flags().StringArrayVar(&flags.required, "required-file", nil, "TOML file layer that must exist (repeatable)")
	cmd.Flags().StringArrayVar(&flags.profileFiles, "profile-file", nil, "profile-tagged TOML layer as name=path (repeatable)")
	cmd.Flags().StringVar(&flags.dotenv, "dotenv", "", "dotenv file layer")
	cmd.Flags().StringVar(&flags.envPrefix, "env-prefix", "", "only environment variables with this prefix participate")
	cmd.Flags().StringVar(&flags.envDelimiter, "env-delimiter", config.DefaultEnvDelimiter, "nesting delimiter for environment variable names")
	cmd.Flags().StringVar(&flags.profile, "profile", "", "active profile")
	cmd.Flags().StringArrayVar(&flags.overrides, "set", nil, "static override as key=value (repeatable)")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "log each loaded layer")
	return cmd
}

func runExplain(cmd *cobra.Command, flags *explainFlags) error {
	level := logger.InfoLevel
	if flags.debug {
		level = logger.DebugLevel
	}
	log := logger.NewLogger(&logger.Config{Level: level, Output: cmd.ErrOrStderr(), TimeFormat: "15:04:05"})
	ctx := logger.ContextWithLogger(cmd.Context(), log)

	sources, err := buildSources(flags)
	if err != nil {
		return err
	}
	rc, err := config.NewResolver().Inspect(ctx, flags.profile, sources...)
	if err != nil {
		return err
	}
	for _, key := range rc.Keys() {
		mv := rc.Values[key]
		chain := make([]string, len(mv.Provenance))
		for i, origin := range mv.Provenance {
			chain[i] = string(origin)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v  %s %s\n",
			keyStyle.Render(key),
			mv.Value,
			winnerStyle.Render(string(mv.Winner)),
			chainStyle.Render("("+strings.Join(chain, " < ")+")"))
	}
	return nil
}

func buildSources(flags *explainFlags) ([]config.Source, error) {
	var sources []config.Source
	for _, path := range flags.files {
		sources = append(sources, config.NewTOMLProvider(path, config.TOMLOptions{}))
	}
	for _, path := range flags.required {
		sources = append(sources, config.NewTOMLProvider(path, config.TOMLOptions{Required: true}))
	}
	for _, spec := range flags.profileFiles {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid --profile-file %q, expected name=path", spec)
		}
		sources = append(sources, config.NewTOMLProvider(path, config.TOMLOptions{Profile: name}))
	}
	if flags.dotenv != "" {
		sources = append(sources, config.NewDotenvProvider(flags.dotenv, config.DotenvOptions{
			Prefix:    flags.envPrefix,
			Delimiter: flags.envDelimiter,
			Required:  true,
		}))
	}
	if flags.envPrefix != "" {
		sources = append(sources, config.NewEnvProvider(config.EnvOptions{
			Prefix:    flags.envPrefix,
			Delimiter: flags.envDelimiter,
		}))
	}
	if len(flags.overrides) > 0 {
		data := make(map[string]any, len(flags.overrides))
		for _, pair := range flags.overrides {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
			}
			data[key] = value
		}
		sources = append(sources, config.NewStaticProvider(data, "static", ""))
	}
	return sources, nil
}
