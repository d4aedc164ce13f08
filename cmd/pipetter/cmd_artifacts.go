package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"pipetter/internal/artifacts"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	artifactOutput string
	presignExpiry  time.Duration
)

// artifactsCmd inspects published run artifacts
var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect artifacts published by earlier runs",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list [run-id]",
	Short: "List published artifacts, optionally for one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArtifactStore(cmd)
		if err != nil {
			return err
		}
		runID := ""
		if len(args) == 1 {
			runID = args[0]
		}
		infos, err := store.List(cmd.Context(), artifacts.ListPrefix(cfg.Artifacts.Prefix, runID))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no artifacts found")
		}
		return nil
	},
}

var artifactsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Download an artifact to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArtifactStore(cmd)
		if err != nil {
			return err
		}
		_, body, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer body.Close()

		var dst io.Writer = cmd.OutOrStdout()
		if artifactOutput != "" {
			f, err := os.Create(artifactOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", artifactOutput, err)
			}
			defer f.Close()
			dst = f
		}
		if _, err := io.Copy(dst, body); err != nil {
			return fmt.Errorf("failed to download %s: %w", args[0], err)
		}
		return nil
	},
}

var artifactsDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a published artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArtifactStore(cmd)
		if err != nil {
			return err
		}
		deleted, err := store.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%s: %w", args[0], artifacts.ErrNotFound)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var artifactsURLCmd = &cobra.Command{
	Use:   "url [key]",
	Short: "Print a time-limited download URL (s3 driver only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArtifactStore(cmd)
		if err != nil {
			return err
		}
		expiry := presignExpiry
		if expiry <= 0 {
			expiry = cfg.GetURLExpiry()
		}
		url, err := store.PresignURL(cmd.Context(), args[0], expiry)
		if errors.Is(err, artifacts.ErrUnsupported) {
			return fmt.Errorf("the %s driver cannot issue download URLs", store.Driver())
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func openArtifactStore(cmd *cobra.Command) (artifacts.Store, error) {
	store, err := artifacts.Open(cmd.Context(), cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("artifact publishing is disabled (artifacts.driver is %q)", cfg.Artifacts.Driver)
	}
	return store, nil
}

func init() {
	artifactsGetCmd.Flags().StringVarP(&artifactOutput, "output", "o", "", "Write to this file instead of stdout")
	artifactsURLCmd.Flags().DurationVar(&presignExpiry, "expiry", 0, "URL lifetime (default artifacts.url_expiry)")

	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsGetCmd)
	artifactsCmd.AddCommand(artifactsDeleteCmd)
	artifactsCmd.AddCommand(artifactsURLCmd)
}
