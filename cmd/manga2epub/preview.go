package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cgourdon/MangaToEpub/internal/converter"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [flags] <input>...",
		Short: "Render one source page the way convert would",
		Long: `preview renders a single source page, counted from 1 after archives
are expanded, with the same settings convert uses. The result is written as
preview-<page>-1.jpg and, for split spreads, preview-<page>-2.jpg.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPreview,
	}
	addRenderFlags(cmd)
	cmd.Flags().Int("page", 1, "Source page to render")
	cmd.Flags().String("out", ".", "Directory the preview images are written to")
	return cmd
}

func runPreview(cmd *cobra.Command, args []string) error {
	opts, err := readRenderOptions(cmd, args)
	if err != nil {
		return err
	}
	defer opts.close()

	page, _ := cmd.Flags().GetInt("page")
	if page < 1 {
		return fmt.Errorf("--page must be at least 1, got %d", page)
	}
	outDir, _ := cmd.Flags().GetString("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	prev, err := converter.NewPipeline(opts.ConvertOptions).Preview(commandContext(cmd), page-1)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	opts.Logger.Debug("preview rendered", "source", prev.Source, "parts", len(prev.Pages))
	for i, p := range prev.Pages {
		if p.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s part %d: %v\n", prev.Source, i+1, p.Err)
			continue
		}
		name := filepath.Join(outDir, fmt.Sprintf("preview-%d-%d.jpg", page, i+1))
		if err := os.WriteFile(name, p.JPEG, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
