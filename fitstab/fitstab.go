/*Package fitstab serializes sweep buffers to FITS binary table files.

One file holds one completed sweep: a row per sample, the three front-end
reading vectors as 64-bit integer columns and the metadata as fixed-width
text columns. The table extension is named FILTER BANK DATA to match the
downstream analysis tooling.
*/
package fitstab

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"

	"github.com/highz-obs/filterbank/catalog"
	"github.com/highz-obs/filterbank/daq"
)

// Extname is the FITS extension name of the data table.
const Extname = "FILTER BANK DATA"

// FieldWidth is the serialized width of the text columns. The 15-character
// timestamp plus its NUL terminator fits exactly.
const FieldWidth = 16

// Variant selects between the two table flavors.
type Variant int

const (
	// Acquisition tables label rows with the decoded switch state and
	// carry a supply-voltage attribute.
	Acquisition Variant = iota

	// Calibration tables label rows with the output power in dBm.
	Calibration
)

// stateColumn returns the name and unit of the variant's label column.
func (v Variant) stateColumn() (name, unit string) {
	if v == Calibration {
		return "POWER_DBM", "dBm"
	}
	return "SWITCH_STATE", ""
}

// Writer serializes buffers into a directory.
type Writer struct {
	// Dir is the output directory; it is created on first write.
	Dir string

	// Variant selects the table flavor.
	Variant Variant

	// Suffix is appended to the base filename before the extension,
	// e.g. "_+5dBm" for a calibration pass. Usually empty.
	Suffix string

	// RunID identifies the session in the primary header and catalog.
	RunID string

	// Band is recorded in the catalog alongside each file.
	FreqStart, FreqEnd float64

	// Catalog, when non-nil, receives an entry per written file.
	Catalog *catalog.DB
}

// The reading vectors are fixed arrays, not slices: fitsio serializes an
// array in-row as the fixed-repeat column the 7K format declares, where a
// slice would take its variable-length heap path and corrupt the table.
type acqRow struct {
	ADHat1 [daq.NumChannels]int64 `fits:"ADHAT_1"`
	ADHat2 [daq.NumChannels]int64 `fits:"ADHAT_2"`
	ADHat3 [daq.NumChannels]int64 `fits:"ADHAT_3"`
	Time   string                 `fits:"TIME_RPI2"`
	State  string                 `fits:"SWITCH_STATE"`
	Freq   string                 `fits:"FREQUENCY"`
	File   string                 `fits:"FILENAME"`
}

type calRow struct {
	ADHat1 [daq.NumChannels]int64 `fits:"ADHAT_1"`
	ADHat2 [daq.NumChannels]int64 `fits:"ADHAT_2"`
	ADHat3 [daq.NumChannels]int64 `fits:"ADHAT_3"`
	Time   string                 `fits:"TIME_RPI2"`
	Power  string                 `fits:"POWER_DBM"`
	Freq   string                 `fits:"FREQUENCY"`
	File   string                 `fits:"FILENAME"`
}

// WriteBuffer writes one completed buffer to a new file named from the
// buffer's shared filename stamp. It returns the path and size of the file.
func (w *Writer) WriteBuffer(b *daq.Buffer) (string, int64, error) {
	if b.Cap() == 0 {
		return "", 0, fmt.Errorf("refusing to serialize an empty buffer")
	}
	base := b.Row(0).Filename
	if base == "" {
		return "", 0, fmt.Errorf("buffer has no filename stamp")
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(w.Dir, base+w.Suffix+".fits")

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", path, err)
	}
	err = w.write(f, b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("serialize %s: %w", path, err)
	}

	st, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	if w.Catalog != nil {
		if cerr := w.Catalog.Record(catalog.Entry{
			RunID:     w.RunID,
			File:      filepath.Base(path),
			Rows:      b.Cap(),
			FreqStart: w.FreqStart,
			FreqEnd:   w.FreqEnd,
			Label:     b.Row(0).Label,
			Bytes:     st.Size(),
			WrittenAt: st.ModTime(),
		}); cerr != nil {
			// the data file is safe on disk, the index is advisory
			log.Printf("catalog entry for %s: %v", filepath.Base(path), cerr)
		}
	}
	return path, st.Size(), nil
}

func (w *Writer) write(f *os.File, b *daq.Buffer) error {
	fits, err := fitsio.Create(f)
	if err != nil {
		return err
	}
	defer fits.Close()

	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return err
	}
	defer phdu.Close()
	cards := []fitsio.Card{
		{Name: "RUNID", Value: w.RunID, Comment: "acquisition session id"},
	}
	if w.Variant == Acquisition {
		cards = append(cards, fitsio.Card{
			Name: "SUPPLYV", Value: b.Supply, Comment: "system supply voltage [V]",
		})
	}
	if err := phdu.Header().Append(cards...); err != nil {
		return err
	}
	if err := fits.Write(phdu); err != nil {
		return err
	}

	stateName, stateUnit := w.Variant.stateColumn()
	vecFormat := fmt.Sprintf("%dK", daq.NumChannels)
	strFormat := fmt.Sprintf("%dA", FieldWidth)
	tbl, err := fitsio.NewTable(Extname, []fitsio.Column{
		{Name: "ADHAT_1", Format: vecFormat},
		{Name: "ADHAT_2", Format: vecFormat},
		{Name: "ADHAT_3", Format: vecFormat},
		{Name: "TIME_RPI2", Format: strFormat},
		{Name: stateName, Format: strFormat, Unit: stateUnit},
		{Name: "FREQUENCY", Format: strFormat, Unit: "MHz"},
		{Name: "FILENAME", Format: strFormat},
	}, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()

	for i := 0; i < b.Cap(); i++ {
		if err := w.writeRow(tbl, b.Row(i)); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return fits.Write(tbl)
}

func (w *Writer) writeRow(tbl *fitsio.Table, s *daq.Sample) error {
	v1 := vector(s.FrontEnd[0])
	v2 := vector(s.FrontEnd[1])
	v3 := vector(s.FrontEnd[2])
	if w.Variant == Calibration {
		return tbl.Write(&calRow{
			ADHat1: v1, ADHat2: v2, ADHat3: v3,
			Time:  fixed(s.Time),
			Power: fixed(s.Label),
			Freq:  fixed(s.Frequency),
			File:  fixed(s.Filename),
		})
	}
	return tbl.Write(&acqRow{
		ADHat1: v1, ADHat2: v2, ADHat3: v3,
		Time:  fixed(s.Time),
		State: fixed(s.Label),
		Freq:  fixed(s.Frequency),
		File:  fixed(s.Filename),
	})
}

func vector(readings [daq.NumChannels]uint32) [daq.NumChannels]int64 {
	var out [daq.NumChannels]int64
	for i, v := range readings {
		out[i] = int64(v)
	}
	return out
}

// fixed bakes a value into the serialized text form: truncated to leave
// room for a NUL terminator, then space padded out to the column width.
func fixed(s string) string {
	if len(s) > FieldWidth-1 {
		s = s[:FieldWidth-1]
	}
	b := make([]byte, FieldWidth)
	copy(b, s)
	b[len(s)] = 0
	for i := len(s) + 1; i < FieldWidth; i++ {
		b[i] = ' '
	}
	return string(b)
}
