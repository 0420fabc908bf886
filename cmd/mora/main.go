// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
mora re-assigns multi-mapped reads from a SAM alignment to the single most
likely reference, using equivalence-class EM abundance estimation followed
by abundance-constrained greedy assignment. Optionally it renders the
result against an NCBI taxonomy dump.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/mora/abundance"
	"github.com/grailbio/mora/assign"
	"github.com/grailbio/mora/config"
	"github.com/grailbio/mora/ingest"
	"github.com/grailbio/mora/refalign"
	"github.com/grailbio/mora/taxonomy"
	"github.com/pkg/errors"
)

var (
	samPath              = flag.String("sam", "", "Path to the input SAM file. Required.")
	minCnt               = flag.Float64("minCnt", float64(config.Default().MinCnt), "Minimum count for a reference to remain valid during EM pruning.")
	abundOut             = flag.String("abund_out", "", "Path for the per-reference abundance table. Omit to skip writing it.")
	batchSize            = flag.Int("batch_size", config.Default().BatchSize, "Byte size of the buffered chunks used to read the SAM file.")
	maxEM                = flag.Int("max_em", config.Default().MaxEMIterations, "Maximum number of EM iterations.")
	segmentSize          = flag.Int("segment_size", config.Default().SegmentSize, "Bin width, in bases, used to estimate per-reference coverage.")
	minScoreDiff         = flag.Float64("min_score_diff", float64(config.Default().ScoreMaxDiff), "Minimum normalised score gap required for a read's best mapping to commit early.")
	maxAbundDiff         = flag.Float64("max_abund_diff", float64(abundance.DefaultConfig.Eps), "EM convergence threshold on the largest per-strain abundance delta.")
	output               = flag.String("output", "", "Path for the final per-read assignment table. Required.")
	taxDir               = flag.String("tax", "", "Directory containing nodes.dmp, names.dmp, and accessionsTaxIDs.tab. Enables lineage rendering.")
	method               = flag.String("method", string(config.Default().Method), "Mapping score method: pufferfish, bowtie2, or minimap2.")
	fallbackMethod       = flag.String("fallback_method", string(config.Default().FallbackMethod), `Fallback policy for reads that never find space: "none" or "prob".`)
	threads              = flag.Int("threads", config.Default().Threads, "Worker count for internal concurrent fan-out.")
	compareGroundTruth   = flag.Bool("compare_ground_truth", false, "Also resolve and report each read's simulated ground-truth lineage. Requires -tax.")
	thresholdingIterStep = flag.Int("thresholding_iter_step", config.Default().ThresholdingIterStep, "How often, in EM iterations, the set-cover pruner runs.")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -sam FILE -output FILE [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	flag.Parse()

	opts := optionsFromFlags()
	if err := opts.Validate(); err != nil {
		log.Fatalf("mora: %v", err)
	}

	ctx := vcontext.Background()
	if err := run(ctx, opts); err != nil {
		log.Fatalf("mora: %v", err)
	}
}

func optionsFromFlags() config.Options {
	opts := config.Default()
	opts.SamPath = *samPath
	opts.OutputPath = *output
	opts.AbundanceOutputPath = *abundOut
	opts.TaxonomyDir = *taxDir
	opts.CompareGroundTruth = *compareGroundTruth
	opts.Method = refalign.Method(*method)
	opts.FallbackMethod = refalign.Method(*fallbackMethod)
	opts.MinCnt = float32(*minCnt)
	opts.MaxEMIterations = *maxEM
	opts.AbundanceEps = float32(*maxAbundDiff)
	opts.ThresholdingIterStep = *thresholdingIterStep
	opts.SegmentSize = *segmentSize
	opts.ScoreMaxDiff = float32(*minScoreDiff)
	opts.BatchSize = *batchSize
	opts.Threads = *threads
	return opts
}

func run(ctx context.Context, opts config.Options) error {
	log.Printf("mora: reading %s", opts.SamPath)
	samFile, err := os.Open(opts.SamPath)
	if err != nil {
		return errors.Wrap(err, "opening sam file")
	}
	defer samFile.Close()

	src := ingest.NewSAMSource(samFile, opts.BatchSize)
	loaded, err := ingest.Load(src, ingest.Options{Method: opts.Method, SegmentSize: opts.SegmentSize})
	if err != nil {
		return errors.Wrap(err, "ingesting sam file")
	}

	abundCfg := abundance.Config{
		MaxIterations:        opts.MaxEMIterations,
		Eps:                  opts.AbundanceEps,
		MinCnt:               opts.MinCnt,
		ThresholdingIterStep: opts.ThresholdingIterStep,
		Workers:              opts.Threads,
	}
	abundResult := abundance.Run(loaded.Classes, loaded.Coverage, loaded.InitialStrainCount, len(loaded.References), abundCfg)
	log.Printf("mora: abundance EM converged after %d iterations", abundResult.Iterations)

	if opts.AbundanceOutputPath != "" {
		if err := writeAbundance(ctx, opts.AbundanceOutputPath, loaded.References, abundResult.Abundance); err != nil {
			return errors.Wrap(err, "writing abundance output")
		}
	}

	assignCfg := assign.Config{
		ScoreMaxDiff:   opts.ScoreMaxDiff,
		FallbackMethod: opts.FallbackMethod,
		Workers:        opts.Threads,
	}
	outcome := assign.Run(loaded.Reads, loaded.References, abundResult.Abundance, loaded.MappedReadCount, assignCfg)

	log.Printf("mora: writing assignments to %s", opts.OutputPath)
	if opts.TaxonomyDir == "" {
		return writeAssignments(ctx, opts.OutputPath, outcome)
	}

	db, err := taxonomy.Load(
		opts.TaxonomyDir+"/nodes.dmp",
		opts.TaxonomyDir+"/names.dmp",
		opts.TaxonomyDir+"/accessionsTaxIDs.tab",
		openFile,
	)
	if err != nil {
		return errors.Wrap(err, "loading taxonomy")
	}
	return writeLineageResults(ctx, opts.OutputPath, loaded.Reads, outcome, db, opts.CompareGroundTruth)
}
