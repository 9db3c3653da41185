package gateway

import (
	"log/slog"
	"time"
)

// Supervisor periodically scans connections and invokes the timeout callback
// for any ready connection silent past the liveness bound. It never mutates
// connection state itself; the callback installed by the hub does that.
type Supervisor struct {
	interval time.Duration
	bound    time.Duration

	list      func() []*Connection
	onTimeout func(*Connection)

	stop chan struct{}
	done chan struct{}
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(interval, bound time.Duration, list func() []*Connection, onTimeout func(*Connection)) *Supervisor {
	return &Supervisor{
		interval:  interval,
		bound:     bound,
		list:      list,
		onTimeout: onTimeout,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the scan loop.
func (s *Supervisor) Start() {
	go s.run()
	slog.Info("Heartbeat supervisor started",
		"interval", s.interval, "bound", s.bound)
}

// Stop halts the loop and waits for the current tick to finish.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Supervisor) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.scan(time.Now())
		}
	}
}

// scan runs one supervision pass. Exposed to tests via the clock argument.
func (s *Supervisor) scan(now time.Time) {
	for _, conn := range s.list() {
		if conn.Status() != StatusReady {
			continue
		}
		if now.Sub(conn.LastHeartbeatAt()) > s.bound {
			s.onTimeout(conn)
		}
	}
}
