package board

import "time"

// Task is a pending deferred call.
type Task interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) Task { return time.AfterFunc(d, f) }

// TimerScheduler runs tasks on time.AfterFunc.
var TimerScheduler Scheduler = timerScheduler{}
