package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamancini/upkeep/internal/codec"
	"github.com/adamancini/upkeep/internal/config"
	"github.com/adamancini/upkeep/internal/templates"
)

type initOptions struct {
	template string
	file     string
	feedURL  string
	force    bool
	list     bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Init writes a config file for the installation from a built-in template.

By default the file is written to upkeep.yaml in the installation directory,
where upkeep finds it without --config.

Templates:
` + templateList(),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.list {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), templateList())
				return nil
			}
			return runInit(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.template, "template", "t", "minimal", "Template to use")
	cmd.Flags().StringVar(&opts.file, "file", "", "Where to write the config (default: <install-dir>/upkeep.yaml)")
	cmd.Flags().StringVar(&opts.feedURL, "feed", "", "Release feed URL to put in the config")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List templates and exit")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return templates.List(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func templateList() string {
	var b strings.Builder
	for _, name := range templates.List() {
		fmt.Fprintf(&b, "  %-8s %s\n", name, templates.GetDescription(name))
	}
	return b.String()
}

// runInit renders the template for this installation and writes it.
func runInit(stdout io.Writer, opts initOptions) error {
	dir := installDir
	var binary string
	if exe, err := executablePath(); err == nil {
		if dir == "" {
			dir = filepath.Dir(exe)
		}
		binary = filepath.Base(exe)
	}
	if dir == "" || binary == "" {
		return errors.New("cannot determine the installation directory (pass --install-dir)")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	tmpl, err := templates.Render(opts.template, templates.Values{
		InstallDir: abs,
		BinaryName: binary,
		FeedURL:    opts.feedURL,
	})
	if err != nil {
		return err
	}

	cfg, err := config.Parse(tmpl.Content, codec.FormatYAML)
	if err != nil {
		return fmt.Errorf("template '%s' produced an unreadable config: %w", opts.template, err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("template '%s' produced an invalid config: %w", opts.template, err)
	}

	path := opts.file
	if path == "" {
		path = configPath
	}
	if path == "" {
		path = filepath.Join(abs, "upkeep.yaml")
	}

	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, tmpl.Content, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "Created %s from the %s template\n", path, tmpl.Name)
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	_, _ = fmt.Fprintf(stdout, "  1. Review %s (feed.url, policy, signing keys)\n", path)
	_, _ = fmt.Fprintln(stdout, "  2. Check the installed version: upkeep version")
	_, _ = fmt.Fprintln(stdout, "  3. Install the latest release: upkeep update")
	return nil
}
