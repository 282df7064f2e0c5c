package cli

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/BartekS5/stageload/pkg/logger"
	"github.com/BartekS5/stageload/pkg/models"
)

func runSchedule(cmd *cobra.Command, opts *Options) error {
	sched, err := cron.ParseStandard(opts.Cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", opts.Cron, err)
	}

	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	p, err := e.pipeline(ctx, opts, parts{extract: true, stage: !opts.DryRun, load: !opts.DryRun})
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(time.UTC))
	c.Schedule(sched, cron.FuncJob(func() {
		run := models.RunIDFor(time.Now())
		res, err := p.Run(ctx, run.String())
		if err != nil {
			logger.Errorf("Scheduled run %s failed: %v", run, err)
			return
		}
		if res != nil {
			logger.Infof("Scheduled run %s loaded %d net new rows", run, res.NetNew())
		}
	}))

	logger.Infof("Scheduler started with %q (UTC); next run at %s", opts.Cron, sched.Next(time.Now().UTC()).Format(time.RFC3339))
	c.Start()
	<-ctx.Done()
	logger.Infof("Stopping scheduler, waiting for a running job to finish")
	<-c.Stop().Done()
	return nil
}
