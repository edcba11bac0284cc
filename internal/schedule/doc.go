// Package schedule fires recurring notification dispatches from cron specs.
//
// Each configured job maps one cron trigger to one bulk dispatch. A job that
// is still running when its next trigger fires is skipped, not queued.
package schedule
