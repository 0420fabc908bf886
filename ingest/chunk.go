// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"bytes"
	"io"
)

const defaultChunkSize = 1 << 20 // 1 MiB; overridden by config.Options.BatchSize in practice.

// chunkedLineReader implements a buffered, chunked read discipline
// directly: it pulls fixed-size byte chunks from the underlying reader and
// splits them into lines, carrying any trailing partial line forward into
// the next chunk so a record is never split across a read boundary. This is
// deliberately not bufio.Scanner, whose default token-size cap would
// truncate an unusually long SAM record; reading into an explicitly sized
// buffer keeps that limit in the caller's hands.
type chunkedLineReader struct {
	r         io.Reader
	chunkSize int
	leftover  []byte
	lines     [][]byte
	eof       bool
}

func newChunkedLineReader(r io.Reader, chunkSize int) *chunkedLineReader {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &chunkedLineReader{r: r, chunkSize: chunkSize}
}

// nextLine returns the next newline-delimited line with its trailing CR/LF
// stripped, or io.EOF once the underlying reader and any trailing partial
// line are both exhausted.
func (c *chunkedLineReader) nextLine() (string, error) {
	for len(c.lines) == 0 {
		if c.eof {
			if len(c.leftover) > 0 {
				line := trimEOL(c.leftover)
				c.leftover = nil
				return string(line), nil
			}
			return "", io.EOF
		}
		buf := make([]byte, c.chunkSize)
		n, err := c.r.Read(buf)
		if n > 0 {
			data := append(c.leftover, buf[:n]...)
			if last := bytes.LastIndexByte(data, '\n'); last == -1 {
				c.leftover = data
			} else {
				complete := data[:last]
				c.leftover = append([]byte(nil), data[last+1:]...)
				for _, l := range bytes.Split(complete, []byte{'\n'}) {
					c.lines = append(c.lines, trimEOL(l))
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				c.eof = true
				continue
			}
			return "", err
		}
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return string(line), nil
}

func trimEOL(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte{'\r'})
}
