package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/leadio"
	"github.com/sells-group/prospector-cli/internal/model"
)

var importPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a CSV or XLSX export",
	Long:  "Reads a file with the Company Name, Primary Contact Email, Website URL, Phone Number, Business Address and Lead Score columns. Rows are deduplicated by email, rows without a valid email are skipped and scores are recomputed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importPath)
		if err != nil {
			return eris.Wrap(err, "read import file")
		}

		var rows []leadio.Row
		if strings.EqualFold(filepath.Ext(importPath), ".xlsx") {
			rows, err = leadio.ReadXLSX(data)
		} else {
			rows, err = leadio.ReadCSV(bytes.NewReader(data))
		}
		if err != nil {
			return err
		}

		sc, err := newScorer()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := leadio.ImportRows(ctx, rows, st, sc)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Rows: %d  New: %d  Already stored: %d  Duplicate rows: %d  Skipped (no email): %d\n",
			rep.Rows, rep.Inserted, rep.Existing, rep.Duplicates, rep.Skipped)
		return nil
	},
}

var (
	exportOut    string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored lead to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format := strings.ToLower(exportFormat)
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(exportOut)), ".")
		}
		switch format {
		case "csv", "xlsx":
		case "":
			format = "csv"
		default:
			return &model.InputError{Field: "format", Value: exportFormat, Msg: "must be csv or xlsx"}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		if format == "xlsx" {
			err = leadio.ExportXLSX(w, leads)
		} else {
			err = leadio.ExportCSV(w, leads)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.Int("leads", len(leads)),
			zap.String("format", format),
			zap.String("out", exportOut),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to CSV or XLSX file (required)")
	_ = importCmd.MarkFlagRequired("file")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "contacts_export.csv", "output file, - for stdout")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv or xlsx (default from --out extension)")

	rootCmd.AddCommand(importCmd, exportCmd)
}
