// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/file"
	"github.com/grailbio/mora/assign"
	"github.com/grailbio/mora/refalign"
	"github.com/grailbio/mora/taxonomy"
	"github.com/pkg/errors"
)

// openFile adapts os.Open to the io.ReadCloser-returning signature
// taxonomy.Load expects, keeping that package free of any file-access
// library dependency.
func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func writeAbundance(ctx context.Context, path string, refs []refalign.Reference, abundance []float32) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w := out.Writer(ctx)
	for i := 1; i < len(refs); i++ {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%g\n", i, refs[i].Name, abundance[i]); err != nil {
			out.Close(ctx)
			return err
		}
	}
	return out.Close(ctx)
}

func writeAssignments(ctx context.Context, path string, outcome *assign.Outcome) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w := out.Writer(ctx)
	for name, ref := range outcome.ByName {
		if _, err := fmt.Fprintf(w, "%s\t%s\t\n", name, ref); err != nil {
			out.Close(ctx)
			return err
		}
	}
	return out.Close(ctx)
}

func writeLineageResults(ctx context.Context, path string, reads []*refalign.Read, outcome *assign.Outcome, db *taxonomy.DB, compareGroundTruth bool) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}

	var rows []taxonomy.Row
	for _, r := range reads {
		if r == nil {
			continue
		}
		ref, ok := outcome.ByReadID[r.ID]
		if !ok {
			continue
		}
		refName, isSentinel := refalign.SentinelName(ref)
		if !isSentinel {
			refName = outcome.ByName[r.Name]
		}

		row := taxonomy.Row{
			Query:     r.Name,
			Reference: refName,
			Assigned:  db.LineageForAccession(refName),
		}
		if compareGroundTruth {
			truth := db.LineageForAccession(taxonomy.QueryAccession(r.Name))
			row.True = truth
			row.HasTruth = true
		}
		rows = append(rows, row)
	}

	if err := taxonomy.WriteResults(out.Writer(ctx), rows, compareGroundTruth); err != nil {
		out.Close(ctx)
		return errors.Wrap(err, "writing lineage results")
	}
	return out.Close(ctx)
}
