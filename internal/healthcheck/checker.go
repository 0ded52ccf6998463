// Package healthcheck probes marketplace providers in the background so
// the /health endpoint can report provider reachability without issuing
// network calls inline.
package healthcheck

import (
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the last known health of one provider.
type Status struct {
	Healthy          bool      `json:"healthy"`
	LastChecked      time.Time `json:"last_checked"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	LastError        string    `json:"last_error,omitempty"`
}

type Config struct {
	// Targets maps a provider name to the URL probed for reachability.
	Targets     map[string]string
	Interval    time.Duration // default 30s
	Timeout     time.Duration // default 5s
	MaxFailures int           // fails before marking unhealthy (default 3)
}

type Checker struct {
	mu       sync.RWMutex
	targets  map[string]string
	status   map[string]*Status
	interval time.Duration
	timeout  time.Duration
	maxFails int
	stopChan chan struct{}
	running  bool
}

func NewChecker(cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	checker := &Checker{
		targets:  cfg.Targets,
		status:   make(map[string]*Status, len(cfg.Targets)),
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		maxFails: cfg.MaxFailures,
		stopChan: make(chan struct{}),
	}

	// Providers start out healthy until proven otherwise.
	for name := range cfg.Targets {
		checker.status[name] = &Status{Healthy: true}
	}

	return checker
}

// Start launches the background probe loop. Safe to call once.
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.checkAll()

		for {
			select {
			case <-ticker.C:
				c.checkAll()
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
	}
}

// Snapshot returns a copy of every provider's status.
func (c *Checker) Snapshot() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Status, len(c.status))
	for name, s := range c.status {
		out[name] = *s
	}
	return out
}

func (c *Checker) checkAll() {
	client := &http.Client{Timeout: c.timeout}

	for name, url := range c.targets {
		err := probe(client, url)

		c.mu.Lock()
		s := c.status[name]
		s.LastChecked = time.Now()

		if err != nil {
			s.ConsecutiveFails++
			s.LastError = err.Error()
			if s.ConsecutiveFails >= c.maxFails && s.Healthy {
				s.Healthy = false
				logrus.WithFields(logrus.Fields{"provider": name, "error": err.Error()}).Warn("provider marked unhealthy")
			}
		} else {
			if !s.Healthy {
				logrus.WithField("provider", name).Info("provider recovered")
			}
			s.Healthy = true
			s.ConsecutiveFails = 0
			s.LastError = ""
		}
		c.mu.Unlock()
	}
}

func probe(client *http.Client, url string) error {
	resp, err := client.Head(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
