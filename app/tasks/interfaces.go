package tasks

// TaskSchedulerInterface is used by main and the API to run syncs in the
// background.
//
//	scheduler := NewScheduler(configCache, engine, workerCount, metrics)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.TriggerSync("schedule")
type TaskSchedulerInterface interface {
	Start() error
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerSync(sourceName string) error
}
