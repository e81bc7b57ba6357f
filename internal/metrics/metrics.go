package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxResponseSamples = 1000

type Metrics struct {
	mutex             sync.RWMutex
	registered        map[string]bool
	acquisitions      map[string]int64
	releases          map[string]int64
	activeConnections map[string]int
	responseTimes     map[string][]time.Duration
	statusCodes       map[string]map[int]int64
	healthStatus      map[string]bool
	acquireFailures   map[string]int64
	startTime         time.Time
}

type Snapshot struct {
	TotalAcquisitions int64                    `json:"total_acquisitions"`
	Uptime            time.Duration            `json:"uptime"`
	Servers           map[string]ServerMetrics `json:"servers"`
	AcquireFailures   map[string]int64         `json:"acquire_failures"`
	Selector          string                   `json:"selector"`
}

type ServerMetrics struct {
	Registered        bool          `json:"registered"`
	Acquisitions      int64         `json:"acquisitions"`
	Releases          int64         `json:"releases"`
	ActiveConnections int           `json:"active_connections"`
	Healthy           bool          `json:"healthy"`
	AvgResponse       time.Duration `json:"avg_response"`
	P50Response       time.Duration `json:"p50_response"`
	P95Response       time.Duration `json:"p95_response"`
	P99Response       time.Duration `json:"p99_response"`
	StatusCodes       map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		registered:        make(map[string]bool),
		acquisitions:      make(map[string]int64),
		releases:          make(map[string]int64),
		activeConnections: make(map[string]int),
		responseTimes:     make(map[string][]time.Duration),
		statusCodes:       make(map[string]map[int]int64),
		healthStatus:      make(map[string]bool),
		acquireFailures:   make(map[string]int64),
		startTime:         time.Now(),
	}
}

func (m *Metrics) RecordRegistration(server string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.registered[server] = true
	m.healthStatus[server] = healthy
}

// RecordDeregistration keeps historical counters but marks the server gone.
func (m *Metrics) RecordDeregistration(server string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.registered[server] = false
	m.activeConnections[server] = 0
}

func (m *Metrics) RecordAcquisition(server string, activeConnections int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.acquisitions[server]++
	m.activeConnections[server] = activeConnections
}

func (m *Metrics) RecordRelease(server string, activeConnections int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.releases[server]++
	m.activeConnections[server] = activeConnections
}

func (m *Metrics) RecordAcquireFailure(reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.acquireFailures[reason]++
}

func (m *Metrics) RecordResponse(server string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[server] = append(m.responseTimes[server], duration)

	if len(m.responseTimes[server]) > maxResponseSamples {
		m.responseTimes[server] = m.responseTimes[server][1:]
	}

	if m.statusCodes[server] == nil {
		m.statusCodes[server] = make(map[int]int64)
	}
	m.statusCodes[server][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(server string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[server] = healthy
}

func (m *Metrics) Snapshot(selector string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:          time.Since(m.startTime),
		Servers:         make(map[string]ServerMetrics),
		AcquireFailures: make(map[string]int64, len(m.acquireFailures)),
		Selector:        selector,
	}

	for reason, n := range m.acquireFailures {
		snap.AcquireFailures[reason] = n
	}

	// Collect all addresses seen by any counter
	all := make(map[string]bool)
	for server := range m.registered {
		all[server] = true
	}
	for server := range m.acquisitions {
		all[server] = true
	}
	for server := range m.responseTimes {
		all[server] = true
	}
	for server := range m.healthStatus {
		all[server] = true
	}

	for server := range all {
		snap.TotalAcquisitions += m.acquisitions[server]

		sm := ServerMetrics{
			Registered:        m.registered[server],
			Acquisitions:      m.acquisitions[server],
			Releases:          m.releases[server],
			ActiveConnections: m.activeConnections[server],
			Healthy:           m.healthStatus[server],
			StatusCodes:       copyCodes(m.statusCodes[server]),
		}

		durations := m.responseTimes[server]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			sm.AvgResponse = average(sorted)
			sm.P50Response = percentile(sorted, 0.50)
			sm.P95Response = percentile(sorted, 0.95)
			sm.P99Response = percentile(sorted, 0.99)
		}

		snap.Servers[server] = sm
	}

	return snap
}

func copyCodes(codes map[int]int64) map[int]int64 {
	if codes == nil {
		return nil
	}
	cp := make(map[int]int64, len(codes))
	for code, n := range codes {
		cp[code] = n
	}
	return cp
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
