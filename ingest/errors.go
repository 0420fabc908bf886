// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import "fmt"

// FormatError reports malformed SAM input, with enough context (line
// number, offending token) for a user to find and fix the record.
type FormatError struct {
	Line  int
	Token string
	Msg   string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("ingest: line %d: %s: %q", e.Line, e.Msg, e.Token)
	}
	return fmt.Sprintf("ingest: %s: %q", e.Msg, e.Token)
}
