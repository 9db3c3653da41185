package database

import (
	"context"
	"time"
)

// HealthStatus reports connectivity and pool statistics.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	Latency   string `json:"latency,omitempty"`
	TotalConn int32  `json:"total_connections"`
	IdleConn  int32  `json:"idle_connections"`
	Error     string `json:"error,omitempty"`
}

// Health pings the database and returns pool statistics.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := c.pool.Ping(ctx)
	stat := c.pool.Stat()

	status := HealthStatus{
		Connected: err == nil,
		TotalConn: stat.TotalConns(),
		IdleConn:  stat.IdleConns(),
	}
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Latency = time.Since(start).String()
	}
	return status
}
