package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/clientdedup/internal/core"
)

// ErrImportFailed is returned when the run itself failed, so the process
// exits non-zero. Row errors alone do not trigger it.
var ErrImportFailed = errors.New("import failed")

func newImportCmd(open Opener) *cobra.Command {
	var (
		chunkSize int
		maxErrors int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV file of contacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			var size int64
			if fi, err := f.Stat(); err == nil {
				size = fi.Size()
			}

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res := svc.Import(cmd.Context(), f, core.ImportOptions{
				ChunkSize: chunkSize,
				MaxErrors: maxErrors,
				FileName:  args[0],
				Size:      size,
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printImportResult(out, res)
			}

			if !res.Success {
				return fmt.Errorf("%w: %s", ErrImportFailed, res.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "rows per transaction (100-5000, default from config)")
	cmd.Flags().IntVar(&maxErrors, "max-errors", 0, "stop after this many errors (10-1000, default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printImportResult(w io.Writer, res core.ImportResult) {
	fmt.Fprintf(w, "batch:      %s\n", res.BatchID)
	fmt.Fprintf(w, "result:     %s\n", res.Message)
	if res.Data == nil {
		return
	}
	d := res.Data
	fmt.Fprintf(w, "rows:       %d read, %d processed\n", d.TotalRows, d.ProcessedRows)
	fmt.Fprintf(w, "imported:   %d\n", d.Imported)
	fmt.Fprintf(w, "duplicates: %d in %d groups\n", d.Duplicates, len(d.DuplicateGroups))
	fmt.Fprintf(w, "errors:     %d\n", d.Errors)

	for _, e := range d.ErrorsDetails {
		switch e.Type {
		case core.ErrorTypeBatch:
			fmt.Fprintf(w, "  chunk %d: %s\n", e.Chunk, e.Error)
		case core.ErrorTypeProcessingLimit:
			fmt.Fprintf(w, "  row %d: %s\n", e.Row, e.Error)
		default:
			fmt.Fprintf(w, "  row %d: %s\n", e.Row, strings.Join(e.ErrorMessages, "; "))
		}
	}
}

func newExportCmd(open Opener) *cobra.Command {
	var (
		filter  string
		groupID string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored contacts as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := core.ParseFilterMode(filter)
			if filter != "" && string(mode) != filter {
				return fmt.Errorf("unknown filter %q (want all, unique, duplicates or group)", filter)
			}
			if mode == core.FilterGroup && groupID == "" {
				return errors.New("--group is required with --filter=group")
			}

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ef := core.ExportFilter{Mode: mode, GroupID: groupID}
			if outPath == "" || outPath == "-" {
				_, err := svc.Export(cmd.Context(), cmd.OutOrStdout(), ef)
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			n, err := svc.Export(cmd.Context(), f, ef)
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close %s: %w", outPath, cerr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", n, outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "all", "all, unique, duplicates or group")
	cmd.Flags().StringVar(&groupID, "group", "", "duplicate group id for --filter=group")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newStatsCmd(open Opener) *cobra.Command {
	var showGroups int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record and duplicate counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "total:            %d\n", st.TotalRecords)
			fmt.Fprintf(w, "unique:           %d\n", st.UniqueRecords)
			fmt.Fprintf(w, "duplicates:       %d\n", st.DuplicateRecords)
			fmt.Fprintf(w, "duplicate groups: %d\n", st.DuplicateGroups)
			fmt.Fprintf(w, "duplicate rate:   %.1f%%\n", st.DuplicateRate()*100)

			if showGroups <= 0 {
				return nil
			}
			page, err := svc.DuplicateGroups(cmd.Context(), 1, showGroups, false)
			if err != nil {
				return err
			}
			for _, g := range page.Groups {
				fmt.Fprintf(w, "  %s  x%d  %s <%s> %s\n",
					g.GroupID, g.Count, g.RepresentativeCompany, g.RepresentativeEmail, g.RepresentativePhone)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&showGroups, "groups", 0, "also list the N largest duplicate groups")
	return cmd
}

func newResetCmd(open Opener) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete all records without --yes")
			}
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := svc.DeleteAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
