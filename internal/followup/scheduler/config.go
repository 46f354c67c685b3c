// internal/followup/scheduler/config.go
package scheduler

import (
	"time"

	"followup-orchestrator/internal/common/config"
)

type Config struct {
	ProcessInterval      time.Duration
	DeadSweepInterval    time.Duration
	AnalyticsInterval    time.Duration
	HealthInterval       time.Duration
	TemplatePerfInterval time.Duration

	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	Concurrency      int
	TaskTimeout      time.Duration
	ClaimLease       time.Duration

	SlowCycleThreshold time.Duration
	FailureRatioWarn   float64
	NoResponseWindow   time.Duration
	RetentionWindow    time.Duration
	ReplyWindow        time.Duration
	ErrorThreshold     int
	QueueDepthCeiling  int
	MaxSequenceStages  int
	ConversationLimit  int
	DistributedLocks   bool
}

func DefaultConfig() *Config {
	return &Config{
		ProcessInterval:      5 * time.Minute,
		DeadSweepInterval:    24 * time.Hour,
		AnalyticsInterval:    time.Hour,
		HealthInterval:       15 * time.Minute,
		TemplatePerfInterval: 24 * time.Hour,
		MaxRetries:           3,
		RetryBackoffBase:     5 * time.Minute,
		RetryBackoffMax:      6 * time.Hour,
		Concurrency:          4,
		TaskTimeout:          time.Minute,
		ClaimLease:           10 * time.Minute,
		SlowCycleThreshold:   5 * time.Minute,
		FailureRatioWarn:     0.10,
		NoResponseWindow:     7 * 24 * time.Hour,
		RetentionWindow:      180 * 24 * time.Hour,
		ReplyWindow:          48 * time.Hour,
		ErrorThreshold:       10,
		QueueDepthCeiling:    1000,
		MaxSequenceStages:    5,
		ConversationLimit:    20,
	}
}

func ConfigFrom(s config.SchedulerConfig) *Config {
	c := DefaultConfig()
	c.ProcessInterval = config.GetDuration(s.ProcessInterval)
	c.DeadSweepInterval = config.GetDuration(s.DeadSweepInterval)
	c.AnalyticsInterval = config.GetDuration(s.AnalyticsInterval)
	c.HealthInterval = config.GetDuration(s.HealthInterval)
	c.TemplatePerfInterval = config.GetDuration(s.TemplatePerfInterval)
	c.MaxRetries = s.MaxRetries
	c.RetryBackoffBase = config.GetDuration(s.RetryBackoffBase)
	c.RetryBackoffMax = config.GetDuration(s.RetryBackoffMax)
	c.Concurrency = s.Concurrency
	c.TaskTimeout = config.GetDuration(s.TaskTimeout)
	if lease := 2 * c.TaskTimeout; lease > c.ClaimLease {
		c.ClaimLease = lease
	}
	c.SlowCycleThreshold = config.GetDuration(s.SlowCycleThreshold)
	c.FailureRatioWarn = s.FailureRatioWarn
	c.NoResponseWindow = config.Days(s.NoResponseWindow)
	c.RetentionWindow = config.Days(s.RetentionWindow)
	c.ErrorThreshold = s.ErrorThreshold
	c.QueueDepthCeiling = s.QueueDepthCeiling
	c.MaxSequenceStages = s.MaxSequenceStages
	c.ConversationLimit = s.ConversationLimit
	c.DistributedLocks = s.DistributedLocks
	return c
}
