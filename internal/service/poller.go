package service

import (
	"sync"
	"time"

	"physiosync-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// statusFunc queries the current capture status.
type statusFunc func() (*models.RecordingStatus, error)

// recordingPoller drives the fixed-interval status loop for one recording
// attempt. It delivers at most one terminal callback, swallows transient
// query failures, and tears itself down once a terminal status is observed
// or Stop is called.
type recordingPoller struct {
	poll       statusFunc
	interval   time.Duration
	onStatus   func(models.RecordingStatus)
	onTerminal func(models.RecordingStatus)
	logger     *logrus.Logger

	stop     chan struct{}
	stopOnce sync.Once
	termOnce sync.Once
}

func newRecordingPoller(poll statusFunc, interval time.Duration, logger *logrus.Logger,
	onStatus, onTerminal func(models.RecordingStatus)) *recordingPoller {
	return &recordingPoller{
		poll:       poll,
		interval:   interval,
		onStatus:   onStatus,
		onTerminal: onTerminal,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Start launches the polling loop.
func (p *recordingPoller) Start() {
	go p.run()
}

func (p *recordingPoller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			status, err := p.poll()
			if err != nil {
				// Transient query failures never terminate the loop;
				// only an explicit error status from the service does.
				p.logger.Warnf("Recording status poll failed: %v", err)
				continue
			}

			switch status.State {
			case models.RecordingStateRecording:
				p.onStatus(*status)
			case models.RecordingStateDone, models.RecordingStateError:
				p.termOnce.Do(func() {
					p.onTerminal(*status)
				})
				p.Stop()
				return
			default:
				p.logger.Warnf("Unknown recording state %q", status.State)
			}
		}
	}
}

// Stop tears the loop down. Safe to call from any goroutine, any number
// of times, including after the loop has already stopped itself.
func (p *recordingPoller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}
