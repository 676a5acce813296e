package metobs

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/i474232898/smhi-opendata/internal/table"
)

// Metadata is the flat key/value view of an observation file's header stanzas,
// e.g. "Stationsnamn" → "Karesuando A".
type Metadata map[string]string

const (
	bodySentinel     = "Datum"
	byteOrderMark    = "\ufeff"
	observationStamp = "2006-01-02 15:04:05"
)

// Decode parses an SMHI observation file into a time-indexed table holding
// the value column and the metadata found in the header stanzas.
func Decode(raw []byte) (*table.Table, Metadata, error) {
	text := strings.TrimPrefix(string(raw), byteOrderMark)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	at := strings.Index(text, bodySentinel)
	if at < 0 {
		return nil, nil, fmt.Errorf("%w: no %q line", ErrEmptyData, bodySentinel)
	}

	meta := parseHeader(text[:at])
	tbl, err := parseBody(strings.TrimSuffix(text[at:], "\n"))
	if err != nil {
		return nil, nil, err
	}
	return tbl, meta, nil
}

func newReader(s string) *csv.Reader {
	r := csv.NewReader(strings.NewReader(s))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

func parseHeader(blob string) Metadata {
	meta := make(Metadata)

	stanzas := strings.Split(blob, "\n\n")
	if n := len(stanzas); n > 0 && strings.TrimSpace(stanzas[n-1]) == "" {
		stanzas = stanzas[:n-1]
	}

	for i, stanza := range stanzas {
		stanza = strings.TrimSpace(stanza)
		if stanza == "" {
			log.Printf("WARN: observation header stanza %d is empty, skipping", i)
			continue
		}

		records, err := newReader(stanza).ReadAll()
		if err != nil {
			log.Printf("WARN: observation header stanza %d unreadable, skipping: %v", i, err)
			continue
		}
		if len(records) < 2 {
			log.Printf("WARN: observation header stanza %d has no values, skipping", i)
			continue
		}

		keys, values := records[0], records[1]
		for j, k := range keys {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			var v string
			if j < len(values) {
				v = strings.TrimSpace(values[j])
			}
			meta[k] = v
		}
	}

	return meta
}

func parseBody(body string) (*table.Table, error) {
	r := newReader(body)

	columns, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable column line: %v", ErrEmptyData, err)
	}
	if len(columns) < 3 {
		return nil, fmt.Errorf("%w: column line %q has no value column", ErrEmptyData, strings.Join(columns, ";"))
	}

	tbl := table.NewIndexed(strings.TrimSpace(columns[2]))

	var (
		line    = 1
		skipped int
		dups    int
		seen    = make(map[time.Time]struct{})
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			skipped++
			continue
		}
		if len(rec) < 3 {
			if len(rec) > 1 || strings.TrimSpace(rec[0]) != "" {
				skipped++
			}
			continue
		}

		ts, err := time.Parse(observationStamp, strings.TrimSpace(rec[0])+" "+strings.TrimSpace(rec[1]))
		if err != nil {
			skipped++
			continue
		}
		if _, dup := seen[ts]; dup {
			dups++
			continue
		}
		seen[ts] = struct{}{}
		tbl.AppendAt(ts, strings.TrimSpace(rec[2]))
	}

	if skipped > 0 {
		log.Printf("WARN: skipped %d unparseable observation rows of %d", skipped, line-1)
	}
	if dups > 0 {
		log.Printf("WARN: dropped %d duplicate observation timestamps", dups)
	}
	if tbl.Len() == 0 {
		return nil, fmt.Errorf("%w: %d rows read, none usable", ErrEmptyData, line-1)
	}
	return tbl, nil
}
