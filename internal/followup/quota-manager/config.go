// internal/followup/quota-manager/config.go
package quotamanager

import (
	"time"

	"followup-orchestrator/internal/common/config"
)

type Config struct {
	Limit            int
	WarningThreshold int
	TargetFloor      int
	UnusedGrace      time.Duration
	UnusedPassCap    int
	StaleAge         time.Duration
	StaleUsageMax    int
	StalePassCap     int
	LowResponseRate  float64
	LowPerfMinUsage  int
	LowPerfPassCap   int
	ReservationTTL   time.Duration
	RegistryTimeout  time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Limit:            250,
		WarningThreshold: 200,
		TargetFloor:      180,
		UnusedGrace:      7 * 24 * time.Hour,
		UnusedPassCap:    20,
		StaleAge:         90 * 24 * time.Hour,
		StaleUsageMax:    5,
		StalePassCap:     15,
		LowResponseRate:  0.20,
		LowPerfMinUsage:  10,
		LowPerfPassCap:   10,
		ReservationTTL:   5 * time.Minute,
		RegistryTimeout:  10 * time.Second,
	}
}

func ConfigFrom(q config.QuotaConfig) *Config {
	c := DefaultConfig()
	c.Limit = q.Limit
	c.WarningThreshold = q.WarningThreshold
	c.TargetFloor = q.TargetFloor
	c.UnusedGrace = config.Days(q.UnusedGraceDays)
	c.UnusedPassCap = q.UnusedPassCap
	c.StaleAge = config.Days(q.StaleAgeDays)
	c.StaleUsageMax = q.StaleUsageMax
	c.StalePassCap = q.StalePassCap
	c.LowResponseRate = q.LowResponseRate
	c.LowPerfMinUsage = q.LowPerfMinUsage
	c.LowPerfPassCap = q.LowPerfPassCap
	c.ReservationTTL = config.GetDuration(q.ReservationTTL)
	return c
}
