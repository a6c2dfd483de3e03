// Package leadio moves leads in and out of the store as spreadsheet files.
package leadio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/dedupe"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/scorer"
)

// Column headers shared by import and export.
const (
	HeaderName    = "Company Name"
	HeaderEmail   = "Primary Contact Email"
	HeaderWebsite = "Website URL"
	HeaderPhone   = "Phone Number"
	HeaderAddress = "Business Address"
	HeaderScore   = "Lead Score"
)

// Headers lists the spreadsheet columns in export order.
var Headers = []string{HeaderName, HeaderEmail, HeaderWebsite, HeaderPhone, HeaderAddress, HeaderScore}

// Row is one spreadsheet line. Score is kept as text: imports recompute it
// and exports format it.
type Row struct {
	Name    string `csv:"Company Name"`
	Email   string `csv:"Primary Contact Email"`
	Website string `csv:"Website URL"`
	Phone   string `csv:"Phone Number"`
	Address string `csv:"Business Address"`
	Score   string `csv:"Lead Score"`
}

// RowFromLead converts a stored lead to its spreadsheet form.
func RowFromLead(l model.Lead) Row {
	return Row{
		Name:    l.Name,
		Email:   l.Email,
		Website: l.Website,
		Phone:   l.Phone,
		Address: l.Address,
		Score:   strconv.FormatFloat(l.Score, 'f', -1, 64),
	}
}

// Sink receives imported leads.
type Sink interface {
	UpsertBatch(ctx context.Context, leads []model.Lead) (int, error)
}

// ImportReport summarizes one import.
type ImportReport struct {
	Rows       int `json:"rows"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Inserted   int `json:"inserted"`
	Existing   int `json:"existing"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV decodes every row of r. Unknown columns are ignored and missing
// ones read as empty.
func ReadCSV(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(br))
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "leadio: read csv header")
	}

	var rows []Row
	for {
		var row Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "leadio: decode csv row %d", len(rows)+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Leads turns decoded rows into import-tagged leads. Rows sharing an email
// keep the first occurrence; rows without a valid email are dropped.
func Leads(rows []Row, s *scorer.Scorer) ([]model.Lead, ImportReport) {
	rep := ImportReport{Rows: len(rows)}
	seen := make(map[string]struct{}, len(rows))
	leads := make([]model.Lead, 0, len(rows))

	for _, row := range rows {
		email := strings.TrimSpace(row.Email)
		if _, dup := seen[email]; dup {
			rep.Duplicates++
			continue
		}
		seen[email] = struct{}{}

		if !model.ValidEmail(email) {
			rep.Skipped++
			continue
		}

		c := model.Contact{
			Website: strings.TrimSpace(row.Website),
			Name:    model.Truncate(strings.TrimSpace(row.Name), model.MaxNameLen),
			Email:   email,
			Phone:   strings.TrimSpace(row.Phone),
			Address: model.Truncate(strings.TrimSpace(row.Address), model.MaxAddressLen),
		}
		leads = append(leads, model.Lead{
			Name:    c.Name,
			Email:   c.Email,
			Website: c.Website,
			Phone:   c.Phone,
			Address: c.Address,
			Source:  model.SourceImport,
			Domain:  dedupe.Domain(c.Website),
			Score:   s.Score(c),
		})
	}
	return leads, rep
}

// Import reads a CSV export and stores its leads. Scores are recomputed
// from the row fields; the Lead Score column is ignored.
func Import(ctx context.Context, r io.Reader, sink Sink, s *scorer.Scorer) (ImportReport, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return ImportReport{}, err
	}
	return ImportRows(ctx, rows, sink, s)
}

// ImportRows stores already decoded rows.
func ImportRows(ctx context.Context, rows []Row, sink Sink, s *scorer.Scorer) (ImportReport, error) {
	leads, rep := Leads(rows, s)
	if len(leads) == 0 {
		return rep, nil
	}

	n, err := sink.UpsertBatch(ctx, leads)
	if err != nil {
		return rep, eris.Wrap(err, "leadio: store imported leads")
	}
	rep.Inserted = n
	rep.Existing = len(leads) - n

	zap.L().Info("leadio: import complete",
		zap.Int("rows", rep.Rows),
		zap.Int("inserted", rep.Inserted),
		zap.Int("existing", rep.Existing),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("skipped", rep.Skipped),
	)
	return rep, nil
}

// ExportCSV writes leads with the standard headers. The header line is
// written even when there are no leads.
func ExportCSV(w io.Writer, leads []model.Lead) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(Row{}); err != nil {
		return eris.Wrap(err, "leadio: write csv header")
	}
	for _, l := range leads {
		if err := enc.Encode(RowFromLead(l)); err != nil {
			return eris.Wrapf(err, "leadio: write csv row %s", l.Email)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "leadio: flush csv")
	}
	return nil
}
