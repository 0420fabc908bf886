// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package taxonomy renders assignment output against the NCBI taxonomy
// dump: nodes.dmp, names.dmp, and an accession-to-taxid map. It sits
// outside the algorithmic core as an optional enrichment step MORA ships
// when a taxonomy directory is configured.
package taxonomy

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Ranks is the fixed rank ladder the output header walks, narrowest first.
var Ranks = []string{"species", "genus", "family", "order", "class", "phylum", "superkingdom"}

// Lineage is one taxon's name at each rank in Ranks, "NA" where the
// original dump had no entry at that rank or the lookup failed entirely.
type Lineage struct {
	Ranks map[string]string
}

// NA returns a lineage with every rank set to "NA", the placeholder used
// when a reference's taxid can't be resolved.
func NA() Lineage {
	l := Lineage{Ranks: make(map[string]string, len(Ranks))}
	for _, r := range Ranks {
		l.Ranks[r] = "NA"
	}
	return l
}

// Names returns the lineage's names in Ranks order, for writing a row.
func (l Lineage) Names() []string {
	out := make([]string, len(Ranks))
	for i, r := range Ranks {
		if n, ok := l.Ranks[r]; ok {
			out[i] = n
		} else {
			out[i] = "NA"
		}
	}
	return out
}

type node struct {
	parent string
	rank   string
}

// DB is a parsed NCBI taxonomy: nodes.dmp's parent/rank table and
// names.dmp's scientific names, plus an accession-to-taxid map built from a
// separate two-column file.
type DB struct {
	nodes            map[string]node
	names            map[string]string
	accessionToTaxID map[string]string
}

// stopTaxIDs are the tax ids build_taxonomy in the original stops walking at:
// cellular organisms (131567) and viruses (10239).
var stopTaxIDs = map[string]bool{"131567": true, "10239": true}

// Load parses the three NCBI taxonomy inputs into a DB.
func Load(nodesPath, namesPath, accessionToTaxIDPath string, open func(string) (io.ReadCloser, error)) (*DB, error) {
	db := &DB{
		nodes:            map[string]node{},
		names:            map[string]string{},
		accessionToTaxID: map[string]string{},
	}

	nf, err := open(nodesPath)
	if err != nil {
		return nil, errors.Wrap(err, "taxonomy: opening nodes.dmp")
	}
	defer nf.Close()
	if err := parseNodes(nf, db.nodes); err != nil {
		return nil, errors.Wrap(err, "taxonomy: parsing nodes.dmp")
	}

	nmf, err := open(namesPath)
	if err != nil {
		return nil, errors.Wrap(err, "taxonomy: opening names.dmp")
	}
	defer nmf.Close()
	if err := parseNames(nmf, db.names); err != nil {
		return nil, errors.Wrap(err, "taxonomy: parsing names.dmp")
	}

	af, err := open(accessionToTaxIDPath)
	if err != nil {
		return nil, errors.Wrap(err, "taxonomy: opening accession-to-taxid map")
	}
	defer af.Close()
	if err := parseAccessionToTaxID(af, db.accessionToTaxID); err != nil {
		return nil, errors.Wrap(err, "taxonomy: parsing accession-to-taxid map")
	}

	return db, nil
}

func parseNodes(r io.Reader, nodes map[string]node) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) < 3 {
			continue
		}
		taxID := strings.TrimSpace(cols[0])
		nodes[taxID] = node{parent: strings.TrimSpace(cols[1]), rank: strings.TrimSpace(cols[2])}
	}
	return sc.Err()
}

func parseNames(r io.Reader, names map[string]string) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) < 4 {
			continue
		}
		if strings.TrimSpace(cols[3]) != "scientific name" {
			continue
		}
		names[strings.TrimSpace(cols[0])] = strings.TrimSpace(cols[1])
	}
	return sc.Err()
}

func parseAccessionToTaxID(r io.Reader, out map[string]string) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			continue
		}
		out[cols[0]] = cols[1]
	}
	return sc.Err()
}

// LineageForAccession resolves an accession (a reference name, or a
// simulated-read query name prefix) to its lineage, returning NA() if the
// accession isn't in the taxid map or its taxid chain can't be walked.
func (db *DB) LineageForAccession(accession string) Lineage {
	taxID, ok := db.accessionToTaxID[accession]
	if !ok {
		return NA()
	}
	return db.lineageForTaxID(taxID)
}

// lineageForTaxID walks the parent chain from taxID up to (but not past)
// the first "cellular organisms" or "viruses" ancestor, keeping only
// ancestors whose rank is one of Ranks, then fills any rank the walk never
// visited with "NA". Grounded on get_taxonomy.rs's build_taxonomy +
// fix_empty_ranks.
func (db *DB) lineageForTaxID(taxID string) Lineage {
	l := NA()
	isRank := make(map[string]bool, len(Ranks))
	for _, r := range Ranks {
		isRank[r] = true
	}

	parent := taxID
	for !stopTaxIDs[parent] {
		n, ok := db.nodes[parent]
		if !ok {
			break
		}
		name := db.names[parent]
		if isRank[n.rank] {
			l.Ranks[n.rank] = name
		}
		if n.parent == "" || n.parent == parent {
			break
		}
		parent = n.parent
	}
	return l
}
