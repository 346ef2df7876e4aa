package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/channel"
	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/metrics"
	"github.com/JakeFAU/ytdl-client/internal/progress"
)

// Every transition below runs on the loop goroutine. c.gen tags the current
// submission or monitoring source; callbacks carrying an older tag are stale
// and ignored.

// submit moves to pending and issues the creation call for req.
func (c *Controller) submit(req job.Request) {
	c.stopMonitoring()
	c.jobCtx, c.jobCancel = context.WithCancel(c.rootCtx)
	c.lastRequest = req.Clone()
	c.submittedAt = c.clock.Now()
	c.state.JobID = ""
	c.state.Status = job.StatusPending
	c.state.Progress = 0
	c.state.Message = ""
	c.state.Error = ""
	c.state.URLError = ""
	c.state.ArtifactURI = ""
	c.appendLog(job.LevelInfo, "Starting download...")
	c.publish()

	gen, ctx := c.gen, c.jobCtx
	go func() {
		id, err := c.gw.CreateJob(ctx, req)
		c.post(func() { c.onCreated(gen, id, err) })
	}()
}

func (c *Controller) onCreated(gen uint64, jobID string, err error) {
	if gen != c.gen {
		return
	}
	if err != nil {
		c.logger.Warn("job creation failed", zap.Error(err))
		c.state.Error = err.Error()
		c.finishFailed("Download failed: "+err.Error(), progress.SourceSession)
		return
	}
	c.state.JobID = jobID
	c.state.Status = job.StatusProcessing
	c.appendLog(job.LevelInfo, "Download started with job ID: "+jobID)
	c.emit(progress.KindSubmitted, progress.SourceSession, nil)
	c.logger.Info("job created", zap.String("job_id", jobID))

	c.gen++
	c.state.Monitor = MonitorStream
	if err := c.ch.Connect(c.jobCtx, jobID, c.streamHandlers(c.gen)); err != nil {
		c.onStreamError(c.gen, err)
	}
}

func (c *Controller) streamHandlers(gen uint64) channel.Handlers {
	return channel.Handlers{
		OnOpen: func() {
			c.post(func() {
				if gen == c.gen && c.state.Monitor == MonitorStream {
					c.appendLog(job.LevelInfo, "Progress monitoring started")
				}
			})
		},
		OnUpdate: func(snap job.StatusSnapshot) {
			c.post(func() {
				if gen == c.gen && c.state.Monitor == MonitorStream {
					c.apply(snap, progress.SourceStream)
				}
			})
		},
		OnError: func(err error) {
			c.post(func() { c.onStreamError(gen, err) })
		},
	}
}

// onStreamError switches from the push stream to status polling. The stream
// is disconnected before the first poll is issued.
func (c *Controller) onStreamError(gen uint64, err error) {
	if gen != c.gen || c.state.Monitor != MonitorStream {
		return
	}
	c.ch.Disconnect()
	c.gen++
	c.state.Monitor = MonitorPoll
	c.pollFailures = 0
	metrics.ObserveStreamFallback()
	c.logger.Warn("progress stream failed, polling status",
		zap.String("job_id", c.state.JobID), zap.Error(err))
	c.appendLog(job.LevelError, "Progress monitoring error: "+streamReason(err))
	c.poll(c.gen)
}

func streamReason(err error) string {
	var sErr *channel.StreamError
	if errors.As(err, &sErr) {
		switch {
		case sErr.Malformed:
			return "Malformed progress event"
		case sErr.Closed:
			return "Connection closed"
		default:
			return "Connection error"
		}
	}
	return err.Error()
}

func (c *Controller) poll(gen uint64) {
	c.pollTimer = nil
	ctx, jobID := c.jobCtx, c.state.JobID
	go func() {
		snap, err := c.gw.FetchStatus(ctx, jobID)
		c.post(func() { c.onPoll(gen, snap, err) })
	}()
}

func (c *Controller) onPoll(gen uint64, snap job.StatusSnapshot, err error) {
	if gen != c.gen || c.state.Monitor != MonitorPoll {
		return
	}
	if err != nil {
		c.pollFailures++
		metrics.ObserveStatusPoll("error")
		pErr := &PollError{JobID: c.state.JobID, Attempt: c.pollFailures, Err: err}
		c.logger.Warn("status poll failed", zap.Error(pErr))
		c.appendLog(job.LevelError, "Status polling error: "+err.Error())
		if c.cfg.MaxPollFailures > 0 && c.pollFailures >= c.cfg.MaxPollFailures {
			c.state.Error = fmt.Sprintf("Lost contact with the backend after %d status checks", c.pollFailures)
			c.finishFailed("Download failed: "+c.state.Error, progress.SourcePoll)
			return
		}
		c.schedulePoll(gen)
		return
	}
	c.pollFailures = 0
	metrics.ObserveStatusPoll("ok")
	c.apply(snap, progress.SourcePoll)
	if c.state.Monitor == MonitorPoll {
		c.schedulePoll(gen)
	}
}

func (c *Controller) schedulePoll(gen uint64) {
	c.pollTimer = c.clock.AfterFunc(c.cfg.PollInterval, func() {
		c.post(func() {
			if gen == c.gen && c.state.Monitor == MonitorPoll {
				c.poll(gen)
			}
		})
	})
}

// apply folds one snapshot into the job. Status is taken verbatim; progress
// never decreases within a job.
func (c *Controller) apply(snap job.StatusSnapshot, source progress.Source) {
	if snap.JobID != "" && snap.JobID != c.state.JobID {
		c.logger.Debug("dropping update for another job",
			zap.String("job_id", c.state.JobID), zap.String("update_job_id", snap.JobID))
		return
	}
	c.state.Status = snap.Status
	c.state.Progress = max(c.state.Progress, job.ClampProgress(snap.Progress))

	switch snap.Status {
	case job.StatusCompleted:
		c.stopMonitoring()
		c.state.Message = "Download completed! The file is ready to save."
		c.appendLog(job.LevelInfo, "Download completed successfully!")
		c.emit(progress.KindDone, source, c.withRuntime)
		c.logger.Info("job completed", zap.String("job_id", c.state.JobID))
	case job.StatusFailed:
		c.state.Error = snap.ErrorMessage
		msg := "Download failed"
		if snap.ErrorMessage != "" {
			msg += ": " + snap.ErrorMessage
		}
		c.finishFailed(msg, source)
	default:
		c.state.Message = fmt.Sprintf("Downloading... %d%%", c.state.Progress)
		c.emit(progress.KindStatus, source, nil)
	}
}

// finishFailed is the single entry into the failed status.
func (c *Controller) finishFailed(logMsg string, source progress.Source) {
	c.stopMonitoring()
	c.state.Status = job.StatusFailed
	if c.state.JobID != "" {
		c.state.Message = "Download failed. Check logs for details."
	}
	c.appendLog(job.LevelError, logMsg)
	c.emit(progress.KindError, source, c.withRuntime)
	c.logger.Info("job failed", zap.String("job_id", c.state.JobID), zap.String("reason", logMsg))
}

func (c *Controller) withRuntime(e *progress.Event) {
	if !c.submittedAt.IsZero() {
		e.Dur = max(0, c.clock.Now().Sub(c.submittedAt))
	}
}

// stopMonitoring disconnects the stream, cancels the poll timer and any
// in-flight calls, and invalidates outstanding callbacks.
func (c *Controller) stopMonitoring() {
	c.gen++
	c.ch.Disconnect()
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	if c.jobCancel != nil {
		c.jobCancel()
		c.jobCancel = nil
	}
	c.state.Monitor = MonitorNone
	c.pollFailures = 0
}
