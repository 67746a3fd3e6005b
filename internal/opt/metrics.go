package opt

// Metrics summarises one annealing run.
type Metrics struct {
	Iterations    int            `json:"iterations"`
	Improvements  int            `json:"improvements"`
	AcceptedWorse int            `json:"acceptedWorse"`
	Rejected      int            `json:"rejected"`
	TunnelMoves   int            `json:"tunnelMoves"`
	LocalMoves    int            `json:"localMoves"`
	InitialKm     float64        `json:"initialKm"`
	BestKm        float64        `json:"bestKm"`
	FinalKm       float64        `json:"finalKm"`
	InitTemp      float64        `json:"initTemp"`
	Cooling       float64        `json:"cooling"`
	Truncated     bool           `json:"truncated,omitempty"`
	Snapshots     []TempSnapshot `json:"snapshots,omitempty"`
}

// TempSnapshot is the search state sampled every SnapshotEvery iterations.
type TempSnapshot struct {
	Iteration   int     `json:"iteration"`
	Temperature float64 `json:"temperature"`
	CurrentKm   float64 `json:"currentKm"`
	BestKm      float64 `json:"bestKm"`
}

// Add folds o into m. Distances are summed, which makes the aggregate the
// fleet total for multi-route runs.
func (m *Metrics) Add(o Metrics) {
	m.Iterations += o.Iterations
	m.Improvements += o.Improvements
	m.AcceptedWorse += o.AcceptedWorse
	m.Rejected += o.Rejected
	m.TunnelMoves += o.TunnelMoves
	m.LocalMoves += o.LocalMoves
	m.InitialKm += o.InitialKm
	m.BestKm += o.BestKm
	m.FinalKm += o.FinalKm
	m.Truncated = m.Truncated || o.Truncated
	if m.InitTemp == 0 {
		m.InitTemp = o.InitTemp
		m.Cooling = o.Cooling
	}
}
