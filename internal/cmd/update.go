package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/upkeep/internal/interactive"
	"github.com/adamancini/upkeep/internal/policy"
	"github.com/adamancini/upkeep/internal/release"
	"github.com/adamancini/upkeep/internal/update"
)

type updateOptions struct {
	releaseFile string
	feedURL     string
	channel     string
	yes         bool
	force       bool
	check       bool
}

func newUpdateCmd() *cobra.Command {
	var opts updateOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install a new release",
		Long: `Update installs a release described by a descriptor file or fetched from a
release feed.

The release is checked against policy before anything is touched. Its
artifact is downloaded to a staging directory and must match the declared
SHA-256 digest (and signature, when required) before the installation is
backed up and the binary replaced. A failed install restores the backup.

Exit codes:
  0  installed, or already up to date
  1  failed; the installation was not changed
  2  install failed and the previous version was restored
  3  install and rollback failed; the installation needs attention

Examples:
  upkeep update --release release.yaml
  upkeep update --feed https://releases.example.com/upkeep --channel beta
  upkeep update --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.releaseFile, "release", "", "Release descriptor file (YAML, TOML or JSON)")
	cmd.Flags().StringVar(&opts.feedURL, "feed", "", "Release feed URL (default: feed.url from config)")
	cmd.Flags().StringVar(&opts.channel, "channel", "", "Release channel to follow (default: feed.channel from config)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Approve releases that policy holds for approval")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Install even if the release is not newer")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Only report whether a newer release is available")
	cmd.MarkFlagsMutuallyExclusive("release", "feed")

	return cmd
}

// checkResult is the output of update --check.
type checkResult struct {
	Current   string `json:"current" yaml:"current"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	Latest    string `json:"latest" yaml:"latest"`
	Channel   string `json:"channel" yaml:"channel"`
	Available bool   `json:"available" yaml:"available"`
}

func (r checkResult) String() string {
	if !r.Available {
		return fmt.Sprintf("Already running the latest %s release (%s)", r.Channel, r.Current)
	}
	current := r.Current
	if current == "" {
		current = "unknown"
	}
	return fmt.Sprintf("Current version: %s\nLatest %s release: %s available\n\nRun 'upkeep update' to install", current, r.Channel, r.Latest)
}

func runUpdate(cmd *cobra.Command, opts updateOptions) error {
	e, err := loadEnv(cmd, update.WithApprover(approver(cmd, opts.yes)))
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	rel, err := loadRelease(ctx, e, opts)
	if err != nil {
		return err
	}

	res := checkResult{Latest: rel.Version, Channel: rel.Channel, Available: true}
	if current, src, err := e.updater.CurrentVersion(ctx); err != nil {
		e.logger.Debug("No installed version found", "error", err)
	} else {
		res.Current = current.String()
		res.Source = src.String()
		if target, err := update.ParseVersion(rel.Version); err == nil {
			res.Available = target.IsGreaterThan(current)
		}
	}

	if opts.check {
		return e.out.Write(res)
	}
	if !res.Available && !opts.force {
		return e.out.Write(res)
	}

	op := e.updater.InstallUpdate(ctx, rel)
	if e.out.Structured() {
		if err := e.out.Write(op); err != nil {
			return err
		}
	} else if !quiet {
		printOperation(e.stdout, op)
	}
	return operationExit(op)
}

// loadRelease reads --release, or asks the feed for the channel's latest
// release.
func loadRelease(ctx context.Context, e *env, opts updateOptions) (*release.Descriptor, error) {
	if opts.releaseFile != "" {
		rel, err := release.LoadFile(opts.releaseFile)
		if err != nil {
			return nil, err
		}
		if opts.channel != "" && rel.Channel != opts.channel {
			return nil, fmt.Errorf("release %s is on channel '%s', not '%s'", rel.Version, rel.Channel, opts.channel)
		}
		return rel, nil
	}

	feedURL := opts.feedURL
	if feedURL == "" {
		feedURL = e.cfg.Feed.URL
	}
	if feedURL == "" {
		return nil, errors.New("no release source: pass --release or --feed, or set feed.url in the config")
	}

	channel := opts.channel
	if channel == "" {
		channel = e.cfg.Feed.Channel
	}

	client := release.NewFeedClient(feedURL).WithToken(e.cfg.Feed.Token)
	e.logger.Debug("Fetching release feed", "url", feedURL, "channel", channel)
	return client.Latest(ctx, channel)
}

// approver returns who answers approval requests: --yes approves, otherwise
// the user is asked on the terminal.
func approver(cmd *cobra.Command, yes bool) update.Approver {
	if yes {
		return update.ApproverFunc(func(context.Context, *release.Descriptor, policy.Decision) (bool, error) {
			return true, nil
		})
	}
	return update.ApproverFunc(newPrompter(cmd).Approve)
}

func newPrompter(cmd *cobra.Command) *interactive.Prompter {
	if in := cmd.InOrStdin(); in != os.Stdin {
		return interactive.NewPrompterWithIO(in, cmd.ErrOrStderr())
	}
	return interactive.NewPrompter()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
