// Package codegen hands serialized workspace documents to an external code
// generator and delivers results asynchronously. The generator is an
// isolated collaborator: the core only knows the request/response shape.
package codegen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request asks the generator to turn a workspace document into source code.
type Request struct {
	ID string `json:"id"`
	// Origin groups requests that supersede each other, typically the
	// editing session id. Only the newest request per origin is still
	// interesting when its result arrives.
	Origin      string `json:"origin"`
	Document    []byte `json:"document"`
	Definitions string `json:"definitions"` // block definitions reference
	Generator   string `json:"generator"`   // generator reference
}

// Response carries generated source text or a structured failure.
type Response struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Callback receives the response for a submitted request. It is invoked on
// the service worker goroutine.
type Callback func(Response)

// Generator produces source text for a request. Implementations may run
// out of process; errors become structured failures in the Response.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Service runs generation requests on a single background worker.
// A newer request for the same origin retires interest in older ones:
// their responses are dropped, not cancelled. The core never needs more
// than the latest result per origin.
type Service struct {
	gen     Generator
	timeout time.Duration

	mu     sync.Mutex
	latest map[string]string // origin -> newest request id

	queue chan job
	done  chan struct{}
	wg    sync.WaitGroup
}

type job struct {
	req Request
	cb  Callback
}

// NewService starts a service around the given generator. Each request is
// bounded by timeout; zero means 30 seconds.
func NewService(gen Generator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Service{
		gen:     gen,
		timeout: timeout,
		latest:  make(map[string]string),
		queue:   make(chan job, 16),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Submit queues a request. The returned request id identifies the eventual
// response; an empty id on the request gets one assigned.
func (s *Service) Submit(req Request, cb Callback) (string, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	s.mu.Lock()
	s.latest[req.Origin] = req.ID
	s.mu.Unlock()

	select {
	case s.queue <- job{req: req, cb: cb}:
		return req.ID, nil
	case <-s.done:
		return "", fmt.Errorf("codegen service is shut down")
	}
}

// Close stops the worker after the in-flight request finishes. Queued
// requests are dropped.
func (s *Service) Close() {
	close(s.done)
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case j := <-s.queue:
			s.process(j)
		}
	}
}

func (s *Service) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	code, err := s.gen.Generate(ctx, j.req)
	cancel()

	if s.superseded(j.req) {
		fmt.Printf("[Codegen %.8s] dropping superseded response for origin %s\n", j.req.ID, j.req.Origin)
		return
	}
	resp := Response{RequestID: j.req.ID, Success: err == nil, Code: code}
	if err != nil {
		resp.Error = err.Error()
	}
	if j.cb != nil {
		j.cb(resp)
	}
}

func (s *Service) superseded(req Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[req.Origin] != req.ID
}
