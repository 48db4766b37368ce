package worker

import "time"

func (w *TaskWorker) SetClock(now func() time.Time) { w.now = now }

func (w *TaskWorker) Holder() string { return w.holder }

func (s *TriggerScheduler) SetClock(now func() time.Time) { s.now = now }
