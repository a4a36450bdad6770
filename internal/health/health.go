package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"callqa/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const (
	StateUp       = "connected"
	StateDown     = "disconnected"
	StateDisabled = "disabled"
)

// Probe reports nil when the dependency answers.
type Probe func(ctx context.Context) error

// Report is the dependency snapshot served by the health endpoint.
type Report struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Errors       map[string]string `json:"errors,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Checker runs every registered probe concurrently under one timeout.
type Checker struct {
	timeout time.Duration
	probes  map[string]Probe
	clock   func() time.Time
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout, probes: map[string]Probe{}, clock: time.Now}
}

// Register adds a named probe. A nil probe is reported as disabled.
func (c *Checker) Register(name string, p Probe) *Checker {
	c.probes[name] = p
	return c
}

func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		p := c.probes[name]
		if p == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p(ctx)
		}()
	}
	wg.Wait()

	r := Report{Status: "ok", Dependencies: map[string]string{}, Timestamp: c.clock().UTC()}
	for i, name := range names {
		switch {
		case c.probes[name] == nil:
			r.Dependencies[name] = StateDisabled
		case errs[i] != nil:
			r.Dependencies[name] = StateDown
			if r.Errors == nil {
				r.Errors = map[string]string{}
			}
			r.Errors[name] = errs[i].Error()
			r.Status = "degraded"
		default:
			r.Dependencies[name] = StateUp
		}
	}
	return r
}

func Postgres(db *sql.DB, timeout time.Duration) Probe {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) error { return utils.HealthCheck(ctx, db, timeout) }
}

func Redis(rdb redis.UniversalClient, timeout time.Duration) Probe {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context) error { return utils.PingRedis(ctx, rdb, timeout) }
}

// HTTP treats any response below 500 from baseURL as reachable. The
// collaborators expose no dedicated health route.
func HTTP(client *http.Client, baseURL string) Probe {
	if baseURL == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}
