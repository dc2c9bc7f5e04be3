// Package scheduler is the time-driven orchestrator of the gateway. It owns
// the committed schedules, decides when to re-optimize and when to publish a
// schedule to the FMS, and persists incomplete publications so a RetryJob can
// replay them after failures or restarts. All optimization and publication
// work runs on the single worker of a Queue.
package scheduler
