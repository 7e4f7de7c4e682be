// Package schedule spreads brick uploads and draws over several frames.
//
// A [Scheduler] walks a list of [Unit]s, one per brick per render mode, and
// stops as soon as the frame's time budget is used up. The next [Scheduler.Step]
// resumes at the same unit, so a full pass completes over as many frames as
// it needs while each frame stays responsive. While the camera moves, an
// [Estimator] turns recent draw costs into a brick quota, and [Distribute]
// shares that quota between several displayed channels.
package schedule
