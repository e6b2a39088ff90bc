package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/schedule"
)

func init() {
	scheduleCmd.AddCommand(scheduleRunCmd)
	rootCmd.AddCommand(scheduleCmd)

	scheduleRunCmd.Flags().String("restaurant", "", "restaurant ID (required)")
	scheduleRunCmd.Flags().String("week-start", "", "ISO week-start date, YYYY-MM-DD (required)")
	scheduleRunCmd.Flags().Bool("publish", false, "publish the generated schedule immediately")
	_ = scheduleRunCmd.MarkFlagRequired("restaurant")
	_ = scheduleRunCmd.MarkFlagRequired("week-start")
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Scheduling engine maintenance commands",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run C11's scoring pass for one restaurant and week",
	RunE:  runScheduleRun,
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	restaurantStr, _ := cmd.Flags().GetString("restaurant")
	weekStartStr, _ := cmd.Flags().GetString("week-start")
	publish, _ := cmd.Flags().GetBool("publish")

	restaurantID, err := domain.ParseID(restaurantStr)
	if err != nil {
		return fmt.Errorf("invalid --restaurant: %w", err)
	}
	weekStart, err := time.Parse("2006-01-02", weekStartStr)
	if err != nil {
		return fmt.Errorf("invalid --week-start: %w", err)
	}

	engine := schedule.New(a.store, a.log)
	run, err := engine.Run(cmd.Context(), restaurantID, weekStart)
	if err != nil {
		return fmt.Errorf("schedule run: %w", err)
	}

	a.log.Info().
		Str("schedule_id", run.ScheduleID.String()).
		Int("items_created", run.ItemsCreated).
		Int("understaffed_slots", run.UnderstaffedSlots).
		Float64("fairness_gini", run.FairnessGini).
		Float64("preference_avg", run.PreferenceAvg).
		Str("forecast_trend", run.ForecastTrend).
		Msg("schedule run completed")

	if publish {
		if err := engine.Publish(cmd.Context(), run.ScheduleID); err != nil {
			return fmt.Errorf("publish schedule: %w", err)
		}
		a.log.Info().Str("schedule_id", run.ScheduleID.String()).Msg("schedule published")
	}
	return nil
}
