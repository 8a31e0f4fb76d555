package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/userdirectory/pkg/health"
)

func newHealthcheckCommand(env *environment) *cobra.Command {
	var (
		timeout time.Duration
		only    []string
	)

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the configured storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := env.start(cmd)
			if err != nil {
				return err
			}
			defer rt.close(env.flags.printMetrics)

			// A failed connect is reported by the storage check below.
			_ = rt.connect()

			registry := health.NewRegistry()
			registry.Register(health.NewPingChecker("liveness"))
			registry.Register(health.NewBackendChecker("storage", rt.backend, timeout))

			var report health.Report
			if len(only) > 0 {
				if report, err = registry.CheckOne(cmd.Context(), only...); err != nil {
					return err
				}
			} else {
				report = registry.Check(cmd.Context())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encode health report: %w", err)
			}
			if !report.IsHealthy() {
				return fmt.Errorf("health status %s: %s", report.Status, strings.Join(report.Failing(), "; "))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-check timeout")
	cmd.Flags().StringSliceVar(&only, "check", nil, "run only the named checks (liveness, storage)")
	return cmd
}
