package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/dlenski/corostc/pkg/coros"
)

// webBase is the vendor's web frontend, used for the check-this-URL hints.
const webBase = "https://t.coros.com"

// DownloadConfig holds configuration for the download tool.
type DownloadConfig struct {
	Credentials
	Format    coros.FileType
	ByNumber  bool
	ToStdout  bool
	Directory string
	Verbose   bool
}

// fileTypeValue adapts coros.FileType to a pflag.Value so --type validates
// its choices at parse time.
type fileTypeValue struct {
	ft *coros.FileType
}

func (v *fileTypeValue) String() string { return v.ft.String() }
func (v *fileTypeValue) Type() string   { return "format" }

func (v *fileTypeValue) Set(s string) error {
	ft, err := coros.ParseFileType(s)
	if err != nil {
		return err
	}
	*v.ft = ft
	return nil
}

// NewDownloadCmd creates the corosdown command
func NewDownloadCmd() *cobra.Command {
	cfg := &DownloadConfig{Format: coros.FileTypeFIT}

	cmd := &cobra.Command{
		Use:   "corosdown [activity-id...]",
		Short: "Download activities from COROS Training Center",
		Long: `Download activity files from COROS Training Center.

Activities are identified by their label IDs; with no IDs given, the latest
activity of the logged-in user is downloaded. Missing credentials are read
from COROS_USERNAME/COROS_PASSWORD/COROS_ACCESS_TOKEN or prompted for.

Examples:
  corosdown -u me@example.com 433719838449385473
  corosdown -T <token> -t gpx -d ./exports 433719838449385473 433719838449385474
  corosdown -c > latest.fit`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.ToStdout && len(args) > 1 {
				return errors.New("specify at most one activity with -c/--stdout")
			}
			return runDownload(cmd.Context(), cfg, args)
		},
	}

	f := cmd.Flags()
	cfg.addCredentialFlags(f)
	f.VarP(&fileTypeValue{&cfg.Format}, "type", "t", "Format in which to download activities (csv, gpx, kml, tcx, fit)")
	f.BoolVarP(&cfg.ByNumber, "number", "N", false, "Label activity files by ID, rather than by their titles")
	f.BoolVarP(&cfg.ToStdout, "stdout", "c", false, "Write activity to standard output")
	f.StringVarP(&cfg.Directory, "directory", "d", "", "Directory in which to store activity files (default is current directory)")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.MarkFlagsMutuallyExclusive("stdout", "directory")

	return cmd
}

func runDownload(ctx context.Context, cfg *DownloadConfig, ids []string) error {
	if err := cfg.Resolve(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)
	client := coros.NewClient(coros.Config{
		Username:    cfg.Username,
		Password:    cfg.Password,
		AccessToken: cfg.AccessToken,
		Logger:      &logger,
	})
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	if len(ids) == 0 {
		act, err := findLatestActivity(ctx, client)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Found latest activity: %q (%s)\n", act.Name, act.SportType)
		ids = []string{act.LabelID}
	}

	warn := color.New(color.FgYellow)
	var result *multierror.Error
	for _, id := range ids {
		webURL := fmt.Sprintf("%s/activity-detail?labelId=%s&sportType=100", webBase, id)

		content, err := client.DownloadActivity(ctx, id, coros.SportRun, cfg.Format)
		if err != nil {
			warn.Fprintf(os.Stderr, "WARNING: error downloading activity %s (check %s): %v\n", id, webURL, err)
			result = multierror.Append(result, fmt.Errorf("activity %s: %w", id, err))
			continue
		}

		if cfg.ToStdout {
			if _, err := os.Stdout.Write(content); err != nil {
				result = multierror.Append(result, fmt.Errorf("activity %s: %w", id, err))
			}
			continue
		}

		name := cfg.outputFilename(ctx, client, id)
		path := filepath.Join(cfg.Directory, name+"."+cfg.Format.String())
		if err := os.WriteFile(path, content, 0o644); err != nil {
			warn.Fprintf(os.Stderr, "WARNING: error writing activity %s: %v\n", id, err)
			result = multierror.Append(result, fmt.Errorf("activity %s: %w", id, err))
			continue
		}
		fmt.Fprintf(os.Stderr, "  Wrote %s from %s\n", path, webURL)
	}
	return result.ErrorOrNil()
}

func findLatestActivity(ctx context.Context, client *coros.Client) (*coros.Activity, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " looking up latest activity..."
	sp.Start()
	act, err := client.LatestActivity(ctx)
	sp.Stop()

	if err != nil {
		return nil, err
	}
	if act == nil {
		return nil, errors.New("no latest activity found for user")
	}
	return act, nil
}

// outputFilename derives a file name from the activity's title unless
// --number was given; any failure falls back to the label ID.
func (cfg *DownloadConfig) outputFilename(ctx context.Context, client *coros.Client, id string) string {
	if cfg.ByNumber {
		return id
	}
	detail, err := client.ActivityDetail(ctx, id, coros.SportRun)
	if err != nil {
		return id
	}
	summary, ok := detail["summary"].(map[string]any)
	if !ok {
		return id
	}
	title, ok := summary["name"].(string)
	if !ok {
		return id
	}
	if name := activityFilename(title); name != "" {
		return name
	}
	return id
}
