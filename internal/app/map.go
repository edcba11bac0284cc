package app

import (
	"notifyd/internal/config"
	"notifyd/internal/delivery"
	"notifyd/internal/schedule"
	"notifyd/internal/storage"
)

// The config package carries durations as strings; these helpers translate
// the file surface into the typed configs the services take.

func mapDeliveryConfig(c config.DeliveryConfig) (delivery.Config, error) {
	retryDelay, err := config.ParseDurationField("delivery.retry_delay", c.RetryDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("delivery.send_timeout", c.SendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		ProviderOrder: c.ProviderOrder,
		MaxRetries:    c.MaxRetries,
		RetryDelay:    retryDelay,
		MaxConcurrent: c.MaxConcurrent,
		SendTimeout:   sendTimeout,
		RatePerSec:    c.RatePerSec,
	}, nil
}

func mapScheduleConfig(c *config.ScheduleConfig) (schedule.Config, error) {
	if c == nil {
		return schedule.Config{}, nil
	}
	out := schedule.Config{
		Enabled:  c.Enabled,
		Timezone: c.Timezone,
		Jobs:     make([]schedule.Job, 0, len(c.Jobs)),
	}
	for _, j := range c.Jobs {
		strat, err := delivery.ParseStrategy(j.Strategy)
		if err != nil {
			return schedule.Config{}, err
		}
		out.Jobs = append(out.Jobs, schedule.Job{
			Name:       j.Name,
			Spec:       j.Spec,
			Strategy:   strat,
			Message:    j.Message,
			Recipients: j.Recipients,
		})
	}
	return out, nil
}

func mapStorageConfig(c *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		BusyTimeout: busy,
	}, nil
}
