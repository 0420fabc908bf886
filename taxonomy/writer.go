// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package taxonomy

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Row is one assigned read's lineage, and optionally the lineage of its
// simulated ground-truth origin when ground-truth comparison is enabled.
type Row struct {
	Query     string
	Reference string
	Assigned  Lineage

	HasTruth bool
	True     Lineage
}

var header = []string{"Query", "Reference", "Species", "Genus", "Family", "Order", "Class", "Phylum", "Superkingdom"}
var trueHeader = []string{"TrueSpecies", "TrueGenus", "TrueFamily", "TrueOrder", "TrueClass", "TruePhylum", "TrueSuperkingdom"}

// WriteResults renders rows as a tab-separated table: a header line, a
// blank line, then one row per read. When withTruth is set, the header and
// every row grow the seven True* columns ("NA" in a row without a
// ground-truth lineage).
func WriteResults(w io.Writer, rows []Row, withTruth bool) error {
	bw := bufio.NewWriter(w)

	cols := append([]string{}, header...)
	if withTruth {
		cols = append(cols, trueHeader...)
	}
	if _, err := fmt.Fprintln(bw, strings.Join(cols, "\t")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(bw); err != nil {
		return err
	}

	for _, row := range rows {
		fields := append([]string{row.Query, row.Reference}, row.Assigned.Names()...)
		if withTruth {
			if row.HasTruth {
				fields = append(fields, row.True.Names()...)
			} else {
				na := NA()
				fields = append(fields, na.Names()...)
			}
		}
		if _, err := fmt.Fprintln(bw, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// QueryAccession splits a query name on "." and returns the first
// component, the accession util.rs resolves a ground-truth lineage from.
func QueryAccession(query string) string {
	parts := strings.SplitN(query, ".", 2)
	return parts[0]
}
