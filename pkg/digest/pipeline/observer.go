package pipeline

import (
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"time"
)

// Observer is notified as a run moves through its states. Implementations
// must not block.
type Observer interface {
	StageStarted(run *Run, stage State)
	StageFinished(run *Run, stage State, elapsed time.Duration, err error)
	RunFinished(run *Run, result *Result, err error)
}

type multiObserver []Observer

func (m multiObserver) StageStarted(run *Run, stage State) {
	for _, o := range m {
		o.StageStarted(run, stage)
	}
}

func (m multiObserver) StageFinished(run *Run, stage State, elapsed time.Duration, err error) {
	for _, o := range m {
		o.StageFinished(run, stage, elapsed, err)
	}
}

func (m multiObserver) RunFinished(run *Run, result *Result, err error) {
	for _, o := range m {
		o.RunFinished(run, result, err)
	}
}

// LogObserver writes each transition to the structured log.
type LogObserver struct {
	logger logger.ILogger
}

func NewLogObserver(log logger.ILogger) *LogObserver {
	return &LogObserver{logger: log}
}

func (l *LogObserver) StageStarted(run *Run, stage State) {
	l.logger.Info("PIPELINE", "Stage started", map[string]interface{}{
		"run_id":  run.Id.String(),
		"user_id": run.UserId.String(),
		"stage":   string(stage),
	})
}

func (l *LogObserver) StageFinished(run *Run, stage State, elapsed time.Duration, err error) {
	details := map[string]interface{}{
		"run_id":     run.Id.String(),
		"stage":      string(stage),
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		details["error"] = err.Error()
		details["kind"] = string(apperr.KindOf(err))
		l.logger.Error("PIPELINE", "Stage failed", details)
		return
	}
	l.logger.Info("PIPELINE", "Stage finished", details)
}

func (l *LogObserver) RunFinished(run *Run, result *Result, err error) {
	details := map[string]interface{}{
		"run_id":     run.Id.String(),
		"user_id":    run.UserId.String(),
		"state":      string(run.State),
		"elapsed_ms": time.Since(run.StartedAt).Milliseconds(),
	}
	if result != nil {
		details["new"] = result.Stats.New
		details["known"] = result.Stats.Known
		details["dropped"] = result.Stats.Dropped
	}
	if err != nil {
		details["error"] = err.Error()
		l.logger.Error("PIPELINE", "Run failed", details)
		return
	}
	l.logger.Info("PIPELINE", "Run completed", details)
}
