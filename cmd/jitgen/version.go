package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"jitkit/internal/version"
)

type versionOptions struct {
	format      string
	showHash    bool
	showMessage bool
	showDate    bool
}

type versionPayload struct {
	Tool string `json:"tool"`
	version.Info
}

func newVersionCmd() *cobra.Command {
	var (
		format                   string
		hash, message, date, all bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show jitgen build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := versionOptions{
				format:      strings.ToLower(format),
				showHash:    hash || all,
				showMessage: message || all,
				showDate:    date || all,
			}
			switch opts.format {
			case "pretty", "json":
			default:
				return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
			}

			info := version.Current()
			if opts.format == "json" {
				return renderVersionJSON(cmd.OutOrStdout(), info, opts)
			}
			renderVersionPretty(cmd.OutOrStdout(), info, opts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&hash, "hash", false, "include git commit hash")
	cmd.Flags().BoolVar(&message, "message", false, "include git commit message")
	cmd.Flags().BoolVar(&date, "date", false, "include build timestamp")
	cmd.Flags().BoolVar(&all, "full", false, "show all build metadata")
	cmd.Flags().StringVar(&format, "format", "pretty", "output format (pretty|json)")
	return cmd
}

func renderVersionPretty(out io.Writer, info version.Info, opts versionOptions) {
	fmt.Fprintf(out, "jitgen %s\n", version.Colored(info.Version))
	if opts.showHash {
		fmt.Fprintf(out, "commit:  %s\n", valueOrUnknown(info.GitCommit))
	}
	if opts.showMessage {
		fmt.Fprintf(out, "message: %s\n", valueOrUnknown(info.GitMessage))
	}
	if opts.showDate {
		fmt.Fprintf(out, "built:   %s\n", valueOrUnknown(info.BuildDate))
	}
}

func renderVersionJSON(out io.Writer, info version.Info, opts versionOptions) error {
	payload := versionPayload{Tool: "jitgen", Info: version.Info{Version: info.Version}}
	if opts.showHash {
		payload.GitCommit = valueOrUnknown(info.GitCommit)
	}
	if opts.showMessage {
		payload.GitMessage = valueOrUnknown(info.GitMessage)
	}
	if opts.showDate {
		payload.BuildDate = valueOrUnknown(info.BuildDate)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
