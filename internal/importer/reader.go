package importer

import (
	"bufio"
	"io"
)

// Reader drives a Parser over a line-oriented source. The first line is the
// header; every following line is one row.
type Reader struct {
	scanner   *bufio.Scanner
	parser    *Parser
	hasHeader bool
}

// NewReader builds a Reader for the given source. The header line is
// consumed immediately; a source without one yields no rows.
func NewReader(src io.Reader, parser *Parser) *Reader {
	r := &Reader{
		scanner: bufio.NewScanner(src),
		parser:  parser,
	}
	if r.scanner.Scan() {
		r.parser.ParseHeader(r.scanner.Text())
		r.hasHeader = true
	}
	return r
}

// Next parses the next row of the source. It returns io.EOF once the source
// is exhausted, which is the pipeline's sole loop termination condition; any
// other error means the source failed mid-read.
func (r *Reader) Next() (Row, error) {
	if !r.hasHeader {
		if err := r.scanner.Err(); err != nil {
			return Row{}, err
		}
		return Row{}, io.EOF
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return Row{}, err
		}
		return Row{}, io.EOF
	}
	return r.parser.ParseRow(r.scanner.Text()), nil
}
