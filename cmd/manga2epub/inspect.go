package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgourdon/MangaToEpub/internal/epub"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <book.epub>",
		Short: "Check that an EPUB is a consistent page-per-image book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := epub.Verify(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Title:      %s\n", summary.Title)
			fmt.Fprintf(w, "Author:     %s\n", summary.Author)
			fmt.Fprintf(w, "Language:   %s\n", summary.Language)
			fmt.Fprintf(w, "Identifier: %s\n", summary.Identifier)
			fmt.Fprintf(w, "Pages:      %d\n", summary.Pages)
			return nil
		},
	}
}
