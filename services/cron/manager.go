package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils"
	"gorm.io/gorm"
)

// ArchiveDeleter removes archived ingestion payloads
type ArchiveDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Options configures the maintenance jobs. Zero durations take the defaults
// set by NewCronManager.
type Options struct {
	IngestionRetention time.Duration
	// StaleAfter is how long an ingestion may stay in processing
	StaleAfter       time.Duration
	CronLogRetention time.Duration
	// Archive, when set, has archived payloads deleted with their logs
	Archive ArchiveDeleter
	Logger  *utils.Logger
}

// job is one scheduled task. spec uses the six-field format with seconds.
type job struct {
	name    string
	spec    string
	timeout time.Duration
	fn      func(ctx context.Context) (string, error)
}

// CronManager runs the maintenance jobs and records each run in cron_job_logs
type CronManager struct {
	cron *cron.Cron
	db   *gorm.DB
	opts Options
	log  *utils.Logger
}

func NewCronManager(db *gorm.DB, opts Options) *CronManager {
	if opts.IngestionRetention <= 0 {
		opts.IngestionRetention = 30 * 24 * time.Hour
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	if opts.CronLogRetention <= 0 {
		opts.CronLogRetention = 30 * 24 * time.Hour
	}
	log := opts.Logger
	if log == nil {
		log = utils.L()
	}
	log = log.With("component", "cron")

	// A run still going when its next tick fires is skipped, and a panic
	// fails only that run
	adapter := cronLogger{log: log}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)

	return &CronManager{cron: c, db: db, opts: opts, log: log}
}

func (m *CronManager) jobs() []job {
	return []job{
		{JobFailStaleIngestions, "0 */15 * * * *", 5 * time.Minute, m.FailStaleIngestions},
		{JobPurgeIngestionLogs, "0 0 3 * * *", 30 * time.Minute, m.PurgeExpiredIngestionLogs},
		{JobCleanupCronLogs, "0 30 3 * * *", 5 * time.Minute, m.CleanupCronLogs},
		{JobCleanupRevoked, "0 5 * * * *", time.Minute, m.CleanupRevokedTokens},
	}
}

// Start schedules every job and starts the scheduler
func (m *CronManager) Start() error {
	for _, j := range m.jobs() {
		j := j
		if _, err := m.cron.AddFunc(j.spec, func() { m.run(j) }); err != nil {
			return err
		}
	}
	m.cron.Start()
	m.log.Info("cron jobs started", "jobs", len(m.cron.Entries()))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (m *CronManager) Stop() {
	<-m.cron.Stop().Done()
	m.log.Info("cron jobs stopped")
}

// run executes j under its timeout and records the outcome
func (m *CronManager) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	entry := model.CronJobLog{JobName: j.name, Status: model.CronJobRunning, StartedAt: time.Now()}
	if err := m.db.Create(&entry).Error; err != nil {
		m.log.Warn("failed to record job start", "job", j.name, "error", err)
	}

	message, err := j.fn(ctx)

	done := time.Now()
	entry.CompletedAt = &done
	entry.DurationMs = done.Sub(entry.StartedAt).Milliseconds()
	if err != nil {
		entry.Status = model.CronJobFailed
		entry.ErrorMsg = err.Error()
		m.log.Error("job failed", "job", j.name, "duration_ms", entry.DurationMs, "error", err)
	} else {
		entry.Status = model.CronJobCompleted
		entry.Message = message
		m.log.Info("job completed", "job", j.name, "duration_ms", entry.DurationMs, "message", message)
	}

	if entry.ID == 0 {
		return
	}
	if err := m.db.Save(&entry).Error; err != nil {
		m.log.Warn("failed to record job outcome", "job", j.name, "error", err)
	}
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	log *utils.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
