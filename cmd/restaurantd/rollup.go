package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfred-ops/restaurant-core/internal/analytics"
	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

func init() {
	rollupCmd.AddCommand(rollupRunCmd)
	rootCmd.AddCommand(rollupCmd)

	rollupRunCmd.Flags().String("restaurant", "", "restaurant ID (required)")
	rollupRunCmd.Flags().String("period-type", "", "shift|hourly|daily|weekly|monthly (required)")
	rollupRunCmd.Flags().String("period-start", "", "RFC3339 timestamp marking the start of the period (required)")
	rollupRunCmd.Flags().Duration("window", 0, "duration of the period to aggregate (required)")
	_ = rollupRunCmd.MarkFlagRequired("restaurant")
	_ = rollupRunCmd.MarkFlagRequired("period-type")
	_ = rollupRunCmd.MarkFlagRequired("period-start")
	_ = rollupRunCmd.MarkFlagRequired("window")
}

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "C12 analytics rollup maintenance commands",
}

var rollupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute waiter and restaurant metrics for one period",
	RunE:  runRollupRun,
}

var periodTypes = map[string]store.PeriodType{
	"shift":   store.PeriodShift,
	"hourly":  store.PeriodHourly,
	"daily":   store.PeriodDaily,
	"weekly":  store.PeriodWeekly,
	"monthly": store.PeriodMonthly,
}

func runRollupRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	restaurantStr, _ := cmd.Flags().GetString("restaurant")
	periodTypeStr, _ := cmd.Flags().GetString("period-type")
	periodStartStr, _ := cmd.Flags().GetString("period-start")
	window, _ := cmd.Flags().GetDuration("window")

	restaurantID, err := domain.ParseID(restaurantStr)
	if err != nil {
		return fmt.Errorf("invalid --restaurant: %w", err)
	}
	periodType, ok := periodTypes[periodTypeStr]
	if !ok {
		return fmt.Errorf("invalid --period-type %q: must be one of shift, hourly, daily, weekly, monthly", periodTypeStr)
	}
	periodStart, err := time.Parse(time.RFC3339, periodStartStr)
	if err != nil {
		return fmt.Errorf("invalid --period-start: %w", err)
	}
	if window <= 0 {
		return fmt.Errorf("--window must be positive")
	}

	roller := analytics.New(a.store, a.metrics)
	if err := roller.RollWaiterAndRestaurant(cmd.Context(), restaurantID, periodType, periodStart, window); err != nil {
		return fmt.Errorf("rollup run: %w", err)
	}

	a.log.Info().
		Str("restaurant_id", restaurantID.String()).
		Str("period_type", periodTypeStr).
		Time("period_start", periodStart).
		Dur("window", window).
		Msg("rollup run completed")
	return nil
}
