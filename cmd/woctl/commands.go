package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/shared/storage/db"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <request.json|->",
		Short: "Report similar open work orders for each item without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req consolidation.CheckSimilarRequest
			if err := readJSON(cmd, args[0], &req); err != nil {
				return err
			}
			app, err := opts.load()
			if err != nil {
				return err
			}
			ctx := consolidation.WithRequestID(cmd.Context(), opts.requestIDOrNew())
			resp, err := app.ConsolidationService.CheckSimilar(ctx, req)
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd, resp)
		},
	}
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <submission.json|->",
		Short: "Create or consolidate work orders for a checklist submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req consolidation.GenerateWorkOrdersRequest
			if err := readJSON(cmd, args[0], &req); err != nil {
				return err
			}
			app, err := opts.load()
			if err != nil {
				return err
			}
			ctx := consolidation.WithRequestID(cmd.Context(), opts.requestIDOrNew())
			result, err := app.ConsolidationService.GenerateWorkOrders(ctx, req)
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd, result)
		},
	}
}

func newStageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <submission.json|->",
		Short: "Store a submission for later replay and enqueue it when a queue is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req consolidation.GenerateWorkOrdersRequest
			if err := readJSON(cmd, args[0], &req); err != nil {
				return err
			}
			app, err := opts.load()
			if err != nil {
				return err
			}
			receipt, err := app.Stager.Stage(cmd.Context(), req, opts.requestIDOrNew())
			if err != nil && receipt.StorageKey == "" {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: staged but not enqueued: %v\n", err)
			}
			return writeJSON(cmd, receipt)
		},
	}
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <checklist-id>",
		Short: "Run a staged submission through the engine now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.load()
			if err != nil {
				return err
			}
			result, err := app.Replayer.Replay(cmd.Context(), args[0], opts.requestIDOrNew())
			if err != nil {
				if result.Items != nil {
					_ = writeJSON(cmd, result)
				}
				return describeError(err)
			}
			return writeJSON(cmd, result)
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var assetID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the work orders of an asset, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.load()
			if err != nil {
				return err
			}
			list, err := app.ConsolidationService.ListWorkOrders(cmd.Context(), assetID)
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd, list)
		},
	}
	cmd.Flags().StringVar(&assetID, "asset", "", "asset id (required)")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <work-order-id>",
		Short: "Show one work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.load()
			if err != nil {
				return err
			}
			wo, err := app.ConsolidationService.GetWorkOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, wo)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.load()
			if err != nil {
				return err
			}
			if app.DB == nil {
				return fmt.Errorf("no database configured; set DATABASE_URL")
			}
			if err := db.RunMigrations(cmd.Context(), app.DB); err != nil {
				return err
			}
			version, err := db.MigrationVersion(cmd.Context(), app.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
