package main

import (
	"time"

	"github.com/misty-step/imploid/internal/foreground"
	"github.com/misty-step/imploid/internal/lockfile"
	"github.com/misty-step/imploid/internal/scheduler"
)

func newForegroundRunner(lock *lockfile.Lock, sched *scheduler.Scheduler, interval time.Duration) *foreground.Runner {
	return foreground.New(lock, sched, interval)
}
