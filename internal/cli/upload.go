package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/dlenski/corostc/pkg/coros"
	"github.com/dlenski/corostc/pkg/fitparse"
)

// UploadConfig holds configuration for the upload tool.
type UploadConfig struct {
	Credentials
	Name       string
	NoCompress bool
	Verbose    bool
}

// NewUploadCmd creates the corosup command
func NewUploadCmd() *cobra.Command {
	cfg := &UploadConfig{}

	cmd := &cobra.Command{
		Use:   "corosup fitfile...",
		Short: "Upload FIT files to COROS Training Center",
		Long: `Upload activity FIT files to COROS Training Center.

Each uploaded file is correlated back to its newly created activity by the
session start time in the FIT file. Missing credentials are read from
COROS_USERNAME/COROS_PASSWORD/COROS_ACCESS_TOKEN or prompted for.

Examples:
  corosup -u me@example.com ride.fit
  corosup -T <token> -n "Morning run" morning_run.fit`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), cfg, args)
		},
	}

	f := cmd.Flags()
	cfg.addCredentialFlags(f)
	f.StringVarP(&cfg.Name, "name", "n", "", "Rename the uploaded activity")
	f.BoolVar(&cfg.NoCompress, "no-compress", false, "Send file contents uncompressed")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func runUpload(ctx context.Context, cfg *UploadConfig, paths []string) error {
	if err := cfg.Resolve(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)
	client := coros.NewClient(coros.Config{
		Username:    cfg.Username,
		Password:    cfg.Password,
		AccessToken: cfg.AccessToken,
		Logger:      &logger,
		FITParser:   fitparse.New(),
	})
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	warn := color.New(color.FgYellow)
	var result *multierror.Error
	uploaded := 0
	for _, path := range paths {
		labelID, err := uploadOne(ctx, client, path, cfg.NoCompress)
		if err != nil {
			warn.Fprintf(os.Stderr, "WARNING: error uploading %s: %v\n", path, err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", path, err))
			continue
		}
		uploaded++

		if labelID == "" {
			fmt.Printf("%s -> <couldn't determine activity ID>\n", path)
			continue
		}
		fmt.Printf("%s -> %s/activity-detail?labelId=%s&sportType=100\n", path, webBase, labelID)

		if cfg.Name != "" {
			if err := client.UpdateActivity(ctx, labelID, map[string]any{"name": cfg.Name}); err != nil {
				warn.Fprintf(os.Stderr, "WARNING: error renaming activity %s: %v\n", labelID, err)
				result = multierror.Append(result, fmt.Errorf("%s: %w", path, err))
			}
		}
	}

	fmt.Printf("Uploaded %d of %d files\n", uploaded, len(paths))
	return result.ErrorOrNil()
}

func uploadOne(ctx context.Context, client *coros.Client, path string, noCompress bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return client.UploadActivity(ctx, filepath.Base(path), f,
		coros.UploadOptions{DisableCompression: noCompress})
}
