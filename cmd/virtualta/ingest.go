package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"virtualta/internal/chunker"
	"virtualta/internal/ingest"
	"virtualta/internal/normalizer"
)

var ingestRecreate bool

var ingestCmd = &cobra.Command{
	Use:       "ingest [docs|forum|all]",
	Short:     "Chunk, embed and index scraped data",
	Long:      "Reads the raw data directories, splits each document into overlapping chunks, embeds them and upserts them into the vector index.",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"docs", "forum", "all"},
	RunE:      runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRecreate, "recreate", false, "Drop and recreate the collection before writing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	which := "all"
	if len(args) == 1 {
		which = args[0]
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	emb, err := a.embedder()
	if err != nil {
		return err
	}
	st, err := a.store()
	if err != nil {
		return err
	}
	in := a.cfg.Ingest
	pipe := ingest.NewPipeline(
		normalizer.New(normalizer.NewTextDecoder(), a.logger.Named("normalizer")),
		chunker.NewSentenceChunker(a.cfg.Chunker.MaxSize, a.cfg.Chunker.Overlap),
		emb, st,
		ingest.Options{BatchSize: in.BatchSize, Logger: a.logger.Named("ingest"), Metrics: a.metrics},
	)

	ctx := cmd.Context()
	recreate := ingestRecreate || (in.RecreateDocs && which != "forum")
	if err := pipe.Prepare(ctx, recreate); err != nil {
		return fmt.Errorf("prepare collection: %w", err)
	}

	type job struct {
		src    ingest.Source
		offset uint64
	}
	var jobs []job
	if which == "docs" || which == "all" {
		jobs = append(jobs, job{ingest.DocsSource{Dir: in.DocsDir, BaseURL: in.DocsBaseURL}, in.DocsOffset})
	}
	if which == "forum" || which == "all" {
		jobs = append(jobs, job{ingest.ForumSource{Dir: in.ForumDir, Logger: a.logger.Named("forum")}, in.ForumOffset})
	}

	for _, j := range jobs {
		n, err := pipe.Ingest(ctx, j.src, ingest.NewCounter(j.offset, ingest.Limit(j.offset, in.DocsOffset, in.ForumOffset)))
		if err != nil {
			return fmt.Errorf("ingest %s: %w", j.src.Family(), err)
		}
		a.logger.Info("ingest finished", zap.String("family", string(j.src.Family())), zap.Int("chunks", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d %s chunks\n", n, j.src.Family())
	}
	return nil
}
