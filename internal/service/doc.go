// Package service runs configured commands on a schedule.
//
// The Supervisor owns a gocron scheduler and a set of uniquely named Jobs.
// A scheduled trigger only hints the event loop started by Do, which then
// submits an asynchronous session through the kit:
//
//	gocron            Supervisor.Do          Job{name}            kit.Kit
//	  |                    |                     |                    |
//	  | Start(name) ------>|                     |                    |
//	  |                    | Start(ctx, kit) --->| FFmpegAsync ------>| pool
//	  |                    |                     |<----- *Session ----|
//
// Invariants:
//   - At most one session per Job runs at a time; a trigger arriving while
//     the previous session runs is skipped.
//   - Parallelism comes from multiple Jobs, bounded by the kit's pool.
//   - When Do returns, the scheduler is stopped and every job session is
//     terminal.
//
// The Watcher reloads the configuration file on change and hands valid
// configurations to Supervisor.Reload.
package service
