package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"aetherflow/internal/backend"
	"aetherflow/internal/cli"
	"aetherflow/internal/services"
)

// metricsService opens the store and wires a MetricsService over it. The
// returned cleanup closes the store.
func (a *app) metricsService(ctx context.Context) (*services.MetricsService, func() error, error) {
	cfg, err := a.appConfig()
	if err != nil {
		return nil, nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(a.logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}

	calc := cli.NewConnectEarthClient(cfg, nil, a.logger)
	svc := services.NewMetricsService(res.Store, calc, res.Exporter, services.MetricsConfig{
		MonthsBack: cfg.MonthsBack,
	}, nil, nil, a.logger)
	return svc, res.Cleanup, nil
}

func (a *app) rebuildCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rebuild <owner>",
		Short: "Rebuild an owner's monthly summaries",
		Long: `Rebuild recomputes the owner's monthly summaries through Connect Earth
and replaces the stored ones. Clean owners are skipped unless --force is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := a.metricsService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.Reload(cmd.Context(), args[0], force)
			if err != nil {
				return fmt.Errorf("rebuild %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even when the owner is not dirty")
	return cmd
}

func (a *app) widgetCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "widget <owner>",
		Short: "Show or reset an owner's widget snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := a.metricsService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if reset {
				if err := svc.ResetWidget(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("reset widget: %w", err)
				}
			}
			snap, err := svc.Widget(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("read widget: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "restore the fallback snapshot first")
	return cmd
}
