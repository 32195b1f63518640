package cron

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidCronExpression = errors.New("invalid cron expression")

// Schedule is an upload schedule parsed from a five-field cron expression.
type Schedule struct {
	spec cron.Schedule
}

func Parse(expr string) (*Schedule, error) {
	if expr == "" {
		return nil, ErrInvalidCronExpression
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, ErrInvalidCronExpression
	}

	return &Schedule{spec: spec}, nil
}

func Validate(expr string) error {
	_, err := Parse(expr)

	return err
}

// Next returns the first activation after from, in the given timezone
// (UTC when empty or unknown).
func (s *Schedule) Next(from time.Time, timezone string) time.Time {
	if s == nil || s.spec == nil {
		return time.Time{}
	}

	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}

	return s.spec.Next(from.In(loc))
}
