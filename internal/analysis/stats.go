package analysis

import "sync"

// Stats aggregates completed submissions since start.
type Stats struct {
	Completed               int64   `json:"completed"`
	RemoteResults           int64   `json:"remote_results"`
	DemoResults             int64   `json:"demo_results"`
	RemoteRate              float64 `json:"remote_rate"`
	AverageProcessingTimeMs float64 `json:"average_processing_time_ms"`
}

type statsRecorder struct {
	mu          sync.Mutex
	completed   int64
	remote      int64
	totalTimeMs int64
}

func (r *statsRecorder) record(processingTimeMs int64, demo bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	if !demo {
		r.remote++
	}
	r.totalTimeMs += processingTimeMs
}

func (r *statsRecorder) summary() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Completed:     r.completed,
		RemoteResults: r.remote,
		DemoResults:   r.completed - r.remote,
	}
	if r.completed > 0 {
		s.RemoteRate = float64(r.remote) / float64(r.completed)
		s.AverageProcessingTimeMs = float64(r.totalTimeMs) / float64(r.completed)
	}
	return s
}
