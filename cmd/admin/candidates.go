package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"valentinequest/internal/candidate"
)

var (
	listCursor string
	listLimit  int
	viewSearch string
	viewSort   string
	exportOut  string
	exportSafe bool
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Inspect candidate submissions",
}

var listCandidatesCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}

		page, err := candidate.NewGormStore(db).List(cmd.Context(), listCursor, listLimit)
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}
		items := candidate.View(page.Items, viewSearch, candidate.ParseSortOrder(viewSort))

		fmt.Println(titleStyle.Render(fmt.Sprintf("%d candidate(s)", len(items))))
		for _, c := range items {
			created := time.UnixMilli(c.CreatedAt).UTC().Format(time.RFC3339)
			fmt.Println(labelStyle.Render(c.Name) + " " + valueStyle.Render(c.Email) + " " + mutedStyle.Render(c.ID+" "+created))
		}
		if page.Next != nil {
			fmt.Println(mutedStyle.Render("next cursor: " + *page.Next))
		}
		return nil
	},
}

var exportCandidatesCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every candidate to a local CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}

		all, err := candidate.ListAll(cmd.Context(), candidate.NewGormStore(db), 200)
		if err != nil {
			return err
		}
		items := candidate.View(all, viewSearch, candidate.ParseSortOrder(viewSort))

		out := exportOut
		if out == "" {
			out = candidate.FullExportFilename(time.Now())
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()

		w := bufio.NewWriter(f)
		if err := candidate.WriteCSV(w, items, candidate.SpreadsheetSafe(exportSafe)); err != nil {
			if errors.Is(err, candidate.ErrNothingToExport) {
				_ = os.Remove(out)
				fmt.Println(mutedStyle.Render("nothing to export"))
				return nil
			}
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}

		printField("exported", fmt.Sprintf("%d row(s) to %s", len(items), out))
		return nil
	},
}

var deleteCandidateCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a candidate by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		deleted, err := candidate.NewGormStore(db).Delete(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("delete candidate: %w", err)
		}
		if deleted {
			notifyCandidateDeleted(cmd.Context(), args[0])
		}
		printField("deleted", fmt.Sprintf("%t", deleted))
		return nil
	},
}

func init() {
	listCandidatesCmd.Flags().StringVar(&listCursor, "cursor", "", "cursor returned by a previous page")
	listCandidatesCmd.Flags().IntVar(&listLimit, "limit", 100, "page size")

	for _, c := range []*cobra.Command{listCandidatesCmd, exportCandidatesCmd} {
		c.Flags().StringVar(&viewSearch, "search", "", "case-insensitive filter")
		c.Flags().StringVar(&viewSort, "sort", string(candidate.SortNewest), "newest or oldest")
	}
	exportCandidatesCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default candidates-YYYY-MM-DD-all.csv)")
	exportCandidatesCmd.Flags().BoolVar(&exportSafe, "spreadsheet-safe", false, "quote cells that spreadsheets would run as formulas")

	candidatesCmd.AddCommand(listCandidatesCmd, exportCandidatesCmd, deleteCandidateCmd)
}
