// Package monitoring turns a simulation into a small HTTP server serving
// read-only JSON snapshots of the hierarchy, plus stepping controls that
// reuse the driver's public entry points.
package monitoring

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"

	"github.com/sarchlab/memsim/mem"
	"github.com/sarchlab/memsim/sim"
)

// Monitor exposes one simulator over HTTP. All handlers serialize access
// to the simulator through a mutex; the engine itself stays
// single-threaded.
type Monitor struct {
	simulator  *sim.Simulator
	portNumber int

	mu sync.Mutex
}

// NewMonitor creates a Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the listening port. Ports below 1000 are rejected
// and replaced with a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the monitoring server. "+
				"Using a random port instead.\n", portNumber)
		portNumber = 0
	}
	m.portNumber = portNumber
	return m
}

// RegisterSimulator registers the simulator to be monitored.
func (m *Monitor) RegisterSimulator(s *sim.Simulator) {
	m.simulator = s
}

// Handler returns the HTTP handler serving the monitoring API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/simulator", m.simulatorSnapshot).Methods("GET")
	r.HandleFunc("/api/cache/{level}", m.cacheSnapshot).Methods("GET")
	r.HandleFunc("/api/memory", m.memorySnapshot).Methods("GET")
	r.HandleFunc("/api/trace", m.traceSnapshot).Methods("GET")
	r.HandleFunc("/api/step", m.step).Methods("POST")
	r.HandleFunc("/api/run", m.run).Methods("POST")
	r.HandleFunc("/api/reset", m.reset).Methods("POST")

	return r
}

// StartServer starts serving in the background and returns the URL of
// the simulator snapshot endpoint.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber >= 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("failed to start monitoring server: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d/api/simulator",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		if err := http.Serve(listener, m.Handler()); err != nil {
			fmt.Fprintf(os.Stderr, "monitoring server stopped: %v\n", err)
		}
	}()

	return url, nil
}

// OpenDashboard opens the monitoring URL in the default browser.
func (m *Monitor) OpenDashboard(url string) {
	if err := browser.OpenURL(url); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open browser: %v\n", err)
	}
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type simulatorSnapshot struct {
	ID              string  `json:"id"`
	Cycle           int64   `json:"cycle"`
	NumOperations   int     `json:"num_operations"`
	NumCaches       int     `json:"num_caches"`
	AddressWidth    int     `json:"address_width"`
	WordWidthBytes  int     `json:"word_width_bytes"`
	TotalAccessTime float64 `json:"total_access_time"`
}

func (m *Monitor) simulatorSnapshot(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.simulator
	m.writeJSON(w, simulatorSnapshot{
		ID:              s.ID(),
		Cycle:           s.Cycle(),
		NumOperations:   s.NumOperations(),
		NumCaches:       s.NumCaches(),
		AddressWidth:    s.AddressWidth(),
		WordWidthBytes:  s.WordWidth(),
		TotalAccessTime: float64(s.TotalAccessTime()),
	})
}

type cacheLineSnapshot struct {
	Tag            uint64   `json:"tag"`
	Set            int      `json:"set"`
	Way            int      `json:"way"`
	Content        []uint64 `json:"content"`
	FirstAccess    int64    `json:"first_access"`
	LastAccess     int64    `json:"last_access"`
	NumberAccesses int64    `json:"number_accesses"`
	Valid          bool     `json:"valid"`
	Dirty          bool     `json:"dirty"`
	Style          int      `json:"style"`
}

type cacheSnapshot struct {
	Level             int                 `json:"level"`
	Split             bool                `json:"split"`
	Sets              int                 `json:"sets"`
	Ways              int                 `json:"ways"`
	LineSizeWords     int                 `json:"line_size_words"`
	WritePolicy       string              `json:"write_policy"`
	ReplacementPolicy string              `json:"replacement_policy"`
	Accesses          uint64              `json:"accesses"`
	Hits              uint64              `json:"hits"`
	Misses            uint64              `json:"misses"`
	DataLines         []cacheLineSnapshot `json:"data_lines"`
	InstLines         []cacheLineSnapshot `json:"inst_lines,omitempty"`
}

func snapshotLines(lines []mem.CacheLine) []cacheLineSnapshot {
	out := make([]cacheLineSnapshot, len(lines))
	for i, line := range lines {
		out[i] = cacheLineSnapshot{
			Tag:            line.Tag,
			Set:            line.Set,
			Way:            line.Way,
			Content:        line.Content,
			FirstAccess:    line.FirstAccess,
			LastAccess:     line.LastAccess,
			NumberAccesses: line.NumberAccesses,
			Valid:          line.Valid,
			Dirty:          line.Dirty,
			Style:          int(line.Style),
		}
	}
	return out
}

func (m *Monitor) cacheSnapshot(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil || level < 1 || level > m.simulator.NumCaches() {
		http.Error(w, "unknown cache level", http.StatusNotFound)
		return
	}

	c := m.simulator.Cache(level - 1)
	m.writeJSON(w, cacheSnapshot{
		Level:             level,
		Split:             c.IsSplit(),
		Sets:              c.Sets(),
		Ways:              c.Ways(),
		LineSizeWords:     c.LineSizeWords(),
		WritePolicy:       c.Config().WritePolicy.String(),
		ReplacementPolicy: c.Config().ReplacementPolicy.String(),
		Accesses:          c.Accesses(),
		Hits:              c.Hits(),
		Misses:            c.Misses(),
		DataLines:         snapshotLines(c.DataLines()),
		InstLines:         snapshotLines(c.InstLines()),
	})
}

type memoryCellSnapshot struct {
	Address uint64 `json:"address"`
	Content uint64 `json:"content"`
	Style   int    `json:"style"`
}

type memorySnapshot struct {
	PageBaseAddress uint64               `json:"page_base_address"`
	PageSize        int64                `json:"page_size"`
	AccessesSingle  uint64               `json:"accesses_single"`
	AccessesBurst   uint64               `json:"accesses_burst"`
	Cells           []memoryCellSnapshot `json:"cells"`
}

func (m *Monitor) memorySnapshot(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	memory := m.simulator.Memory()
	cells := memory.Cells()
	out := make([]memoryCellSnapshot, len(cells))
	for i, cell := range cells {
		out[i] = memoryCellSnapshot{
			Address: cell.Address,
			Content: cell.Content,
			Style:   int(cell.Style),
		}
	}

	m.writeJSON(w, memorySnapshot{
		PageBaseAddress: memory.PageBaseAddress(),
		PageSize:        memory.PageSize(),
		AccessesSingle:  memory.AccessesSingle(),
		AccessesBurst:   memory.AccessesBurst(),
		Cells:           out,
	})
}

type operationSnapshot struct {
	Kind       string `json:"kind"`
	Address    uint64 `json:"address"`
	IsData     bool   `json:"is_data"`
	Payload    uint64 `json:"payload,omitempty"`
	Breakpoint bool   `json:"breakpoint,omitempty"`
}

func (m *Monitor) traceSnapshot(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := m.simulator.Operations()
	out := make([]operationSnapshot, len(ops))
	for i, op := range ops {
		out[i] = operationSnapshot{
			Kind:       op.Kind.String(),
			Address:    op.Address,
			IsData:     op.IsData,
			Breakpoint: op.Breakpoint,
		}
		if op.Kind == mem.Store {
			out[i].Payload = op.Data[0]
		}
	}
	m.writeJSON(w, out)
}

func (m *Monitor) step(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulator.SingleStep()
	m.writeJSON(w, map[string]int64{"cycle": m.simulator.Cycle()})
}

func (m *Monitor) run(w http.ResponseWriter, r *http.Request) {
	stopOnBreakpoint := r.URL.Query().Get("breakpoints") == "1"

	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulator.StepAll(stopOnBreakpoint)
	m.writeJSON(w, map[string]int64{"cycle": m.simulator.Cycle()})
}

func (m *Monitor) reset(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulator.Reset()
	m.writeJSON(w, map[string]int64{"cycle": 0})
}
