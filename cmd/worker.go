package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/jobqueue"
	"github.com/sells-group/procsearch/internal/objectstore"
	anthropicpkg "github.com/sells-group/procsearch/pkg/anthropic"
)

// workerCmd drains the background job queue (executive summaries and
// xlsx report generation) that a serve process enqueues when Redis is
// available (§4.8/§4.9). It shares nothing with the HTTP process beyond
// Redis; a deployment can run any number of workers.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drain the background job queue (summaries, report generation)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return eris.Wrap(err, "worker: parse redis.url")
		}
		redisClient := redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()

		objects, err := objectstore.New(cfg.Server.ObjectStorageURL, "")
		if err != nil {
			return eris.Wrap(err, "worker: object store")
		}

		w := &jobqueue.Worker{
			Queue:   jobqueue.NewQueue(redisClient),
			Results: jobqueue.NewResultStore(redisClient, time.Duration(cfg.JobQueue.ResultTTLMin)*time.Minute),
			Redis:   redisClient,
			Reports: jobqueue.ReportGenerator{},
			Objects: objects,
		}
		if cfg.LLM.APIKey != "" {
			w.Summaries = &jobqueue.AnthropicSummaryGenerator{
				Client: anthropicpkg.NewClient(cfg.LLM.APIKey),
				Model:  cfg.LLM.SummaryModel,
			}
		} else {
			zap.L().Warn("worker: llm.api_key not set, summary jobs will fail until configured")
		}

		zap.L().Info("worker: draining job queue")
		w.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
