package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

func reconcileCommand() *cobra.Command {
	var (
		churchID int64
		actorID  int64
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair members whose status disagrees with their latest exit record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if churchID <= 0 {
				return errors.New("--church-id is required")
			}
			return reconcileRun(cmd.Context(), id.ChurchID(churchID), id.UserID(actorID))
		},
	}
	cmd.Flags().Int64Var(&churchID, "church-id", 0, "church to reconcile")
	cmd.Flags().Int64Var(&actorID, "actor-id", 0, "user recorded as the updater of repaired exits")
	return cmd
}

func reconcileRun(ctx context.Context, churchID id.ChurchID, actor id.UserID) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.InMemory() {
		return errors.New("reconcile needs FLOCK_DATABASE_URL")
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// Drain post-commit notifications before exiting.
	queueCtx, stopQueue := context.WithCancel(ctx)
	queueDone := make(chan error, 1)
	go func() { queueDone <- a.queue.Run(queueCtx) }()

	ctx = requestcontext.WithUserID(requestcontext.WithChurchID(ctx, churchID), actor)
	fixed, err := a.exits.FixAllInconsistentExits(ctx, churchID, actor)
	stopQueue()
	if qerr := <-queueDone; qerr != nil {
		logger.Warn("task queue", "error", qerr)
	}
	if err != nil {
		return fmt.Errorf("reconcile church %d: %w", churchID, err)
	}
	logger.Info("reconcile finished", "church_id", churchID, "fixed", fixed)
	return nil
}
