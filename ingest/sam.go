// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"io"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
)

// ReferenceHeader is one @SQ header line: a reference name and length.
type ReferenceHeader struct {
	Name   string
	Length int
}

// AlignmentRecord is one parsed SAM alignment line, reduced to the fields
// ingest needs: query name, mapped-or-not reference name, leftmost
// position, sequence length (for coverage), and the raw AS:i score if
// present.
type AlignmentRecord struct {
	QName  string
	RName  string // empty when the record is unmapped ("*")
	Pos    int64
	SeqLen int
	AS     int
	HasAS  bool
}

// AlignmentSource is anything that can hand ingest.Load a parsed SAM
// header followed by a stream of records. SAMSource is the production
// implementation; tests can supply a fake.
type AlignmentSource interface {
	// Header consumes and parses every leading header line, returning
	// the @SQ records in file order. Must be called before Next.
	Header() ([]ReferenceHeader, error)
	// Next returns the next alignment record, or io.EOF once exhausted.
	Next() (AlignmentRecord, error)
}

// SAMSource reads raw SAM text from an io.Reader using a buffered, chunked
// discipline: large fixed-size reads, never splitting a record across a
// read boundary, and tolerant of interleaved duplicate query names
// (handled one layer up, in Load).
type SAMSource struct {
	lr         *chunkedLineReader
	pending    string
	hasPending bool
	headers    []ReferenceHeader
	headerDone bool
	lineNo     int
}

// NewSAMSource wraps r. chunkSize is the read buffer size in bytes
// (config.Options.BatchSize); <= 0 selects a reasonable default.
func NewSAMSource(r io.Reader, chunkSize int) *SAMSource {
	return &SAMSource{lr: newChunkedLineReader(r, chunkSize)}
}

func (s *SAMSource) Header() ([]ReferenceHeader, error) {
	if s.headerDone {
		return s.headers, nil
	}
	for {
		line, err := s.lr.nextLine()
		if err != nil {
			if err == io.EOF {
				s.headerDone = true
				return s.headers, nil
			}
			return nil, err
		}
		s.lineNo++
		if line == "" {
			continue
		}
		if line[0] != '@' {
			s.pending = line
			s.hasPending = true
			s.headerDone = true
			return s.headers, nil
		}
		if err := s.parseHeaderLine(line); err != nil {
			return nil, err
		}
	}
}

func (s *SAMSource) parseHeaderLine(line string) error {
	fields := strings.Split(line, "\t")
	if fields[0] != "@SQ" {
		return nil
	}
	var name string
	var length int
	var hasName, hasLen bool
	for _, f := range fields[1:] {
		switch {
		case strings.HasPrefix(f, "SN:"):
			name = f[len("SN:"):]
			hasName = true
		case strings.HasPrefix(f, "LN:"):
			n, err := strconv.Atoi(f[len("LN:"):])
			if err != nil {
				return &FormatError{Line: s.lineNo, Token: f, Msg: "unparseable @SQ LN tag"}
			}
			length = n
			hasLen = true
		}
	}
	if !hasName || !hasLen {
		return &FormatError{Line: s.lineNo, Token: line, Msg: "malformed @SQ header: missing SN or LN"}
	}
	s.headers = append(s.headers, ReferenceHeader{Name: name, Length: length})
	return nil
}

func (s *SAMSource) Next() (AlignmentRecord, error) {
	var line string
	if s.hasPending {
		line = s.pending
		s.hasPending = false
	} else {
		for {
			l, err := s.lr.nextLine()
			if err != nil {
				return AlignmentRecord{}, err
			}
			s.lineNo++
			if l == "" {
				continue
			}
			line = l
			break
		}
	}
	return s.parseRecord(line)
}

// samMinColumns is QNAME..QUAL, the eleven mandatory SAM columns (0-indexed
// 0..10); tags start at column 11.
const samMinColumns = 11

func (s *SAMSource) parseRecord(line string) (AlignmentRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < samMinColumns {
		return AlignmentRecord{}, &FormatError{Line: s.lineNo, Token: line, Msg: "too few SAM columns"}
	}
	pos, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return AlignmentRecord{}, &FormatError{Line: s.lineNo, Token: fields[3], Msg: "unparseable POS"}
	}
	rec := AlignmentRecord{
		QName:  fields[0],
		Pos:    pos,
		SeqLen: len(fields[9]),
	}
	if rname := fields[2]; rname != "*" {
		rec.RName = rname
	}
	for _, tag := range fields[samMinColumns:] {
		if len(tag) < 5 || tag[0] != 'A' || tag[1] != 'S' || tag[2] != ':' || tag[3] != 'i' {
			continue
		}
		if _, err := sam.ParseAux([]byte(tag)); err != nil {
			return AlignmentRecord{}, &FormatError{Line: s.lineNo, Token: tag, Msg: "unparseable AS tag"}
		}
		// ParseAux stores the value in a fixed-width integer type, so the
		// validated digits are read back directly.
		v, err := strconv.Atoi(tag[len("AS:i:"):])
		if err != nil {
			return AlignmentRecord{}, &FormatError{Line: s.lineNo, Token: tag, Msg: "AS tag is not an integer"}
		}
		rec.AS, rec.HasAS = v, true
		break
	}
	return rec, nil
}
