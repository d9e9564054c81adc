// Package csvfile reads delimited export files: it detects the field
// delimiter from a leading sample and streams records to the caller.
package csvfile

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

const utf8BOM = "\ufeff"

// Options configures the streaming reader.
type Options struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is not sent on the row channel
	HeaderCh   chan<- []string // optional: receives the header row
	LazyQuotes bool
}

// Stream reads delimited records from r and sends them to a channel. A UTF-8
// byte order mark at the start of the input is dropped. The caller must drain
// the row channel; a read failure is sent on the error channel. Both channels
// are closed when reading completes.
func Stream(ctx context.Context, r io.Reader, opts Options) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // short rows are padded by the consumer

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csvfile: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csvfile: read row")
				return
			}

			if first {
				if len(record) > 0 {
					record[0] = strings.TrimPrefix(record[0], utf8BOM)
				}
				if opts.HasHeader {
					first = false
					if opts.HeaderCh != nil {
						select {
						case opts.HeaderCh <- record:
						case <-ctx.Done():
							errCh <- eris.Wrap(ctx.Err(), "csvfile: context cancelled sending header")
							return
						}
					}
					continue
				}
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csvfile: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadAll streams r to completion and returns the header and data rows.
func ReadAll(ctx context.Context, r io.Reader, delimiter rune) ([]string, [][]string, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := Stream(ctx, r, Options{
		Delimiter: delimiter,
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, nil, err
	}

	select {
	case header := <-headerCh:
		return header, rows, nil
	default:
		return nil, nil, eris.New("csvfile: missing header row")
	}
}
