package service

import (
	"errors"
	"fmt"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"
)

// jobDefinition turns a configured schedule into a gocron job definition.
func jobDefinition(s model.Schedule) (gocron.JobDefinition, error) {
	switch {
	case s.Cron != "":
		if _, err := model.ParseCron(s.Cron); err != nil {
			return nil, fmt.Errorf("parsing cron: %w", err)
		}
		return gocron.CronJob(s.Cron, model.HasSeconds(s.Cron)), nil
	case s.Duration != "":
		d, err := s.Interval()
		if err != nil {
			return nil, fmt.Errorf("parsing duration: %w", err)
		}
		return gocron.DurationJob(d), nil
	default:
		return nil, errors.New("both cron and duration are empty")
	}
}
