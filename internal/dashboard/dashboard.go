package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/echobench/internal/loadgen"
	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/report"
)

const (
	refreshInterval = 500 * time.Millisecond
	historyLimit    = 100
	maxFailureRows  = 10
)

// ProgressSource exposes counters of the cell in flight. It is nil in
// external mode, where the benchmark tool owns the clients.
type ProgressSource interface {
	Progress() loadgen.Progress
}

// RunInfo holds suite parameters for display.
type RunInfo struct {
	Mode          string        // inprocess or external
	Targets       []string      // target names in run order
	Levels        []int         // concurrency levels per target
	MessageLength int           // bytes per message
	Messages      int           // messages per client (0 = duration bound)
	Duration      time.Duration // per-client duration when Messages is 0
	ConfigFile    string        // path to config file if used
}

// Dashboard renders a live terminal UI for a comparison suite.
type Dashboard struct {
	source       ProgressSource
	info         RunInfo
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid          *ui.Grid
	summaryPara   *widgets.Paragraph
	sessionGauge  *widgets.Gauge
	cellPara      *widgets.Paragraph
	rateSparkline *widgets.SparklineGroup
	throughputBar *widgets.BarChart
	failureList   *widgets.List

	cells       []report.Cell
	current     string
	rateHistory []float64
	lastSample  sample
	startTime   time.Time
}

type sample struct {
	at        time.Time
	successes int64
}

// New initializes the terminal and builds the widgets.
func New(source ProgressSource, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		source:       source,
		info:         info,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		rateHistory:  make([]float64, 0, historyLimit),
		startTime:    time.Now(),
	}
	d.initWidgets()
	d.setupGrid()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Suite"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.sessionGauge = widgets.NewGauge()
	d.sessionGauge.Title = "Sessions Finished"
	d.sessionGauge.BarColor = ui.ColorBlue
	d.sessionGauge.BorderStyle.Fg = ui.ColorCyan
	d.sessionGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.cellPara = widgets.NewParagraph()
	d.cellPara.Title = "Current Cell"
	d.cellPara.Text = "Waiting for the first target..."
	d.cellPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "msg/s"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.rateSparkline = widgets.NewSparklineGroup(sparkline)
	d.rateSparkline.Title = "Live Throughput"
	d.rateSparkline.BorderStyle.Fg = ui.ColorCyan

	d.throughputBar = widgets.NewBarChart()
	d.throughputBar.Title = "Throughput by Cell (msg/s)"
	d.throughputBar.BarWidth = 9
	d.throughputBar.BarColors = []ui.Color{ui.ColorGreen, ui.ColorMagenta, ui.ColorYellow, ui.ColorBlue}
	d.throughputBar.NumFormatter = formatThroughput
	d.throughputBar.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failures"
	d.failureList.Rows = []string{"[No failures](fg:green)"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.22,
			ui.NewCol(0.4, d.sessionGauge),
			ui.NewCol(0.6, d.cellPara),
		),
		ui.NewRow(0.22,
			ui.NewCol(1.0, d.rateSparkline),
		),
		ui.NewRow(0.42,
			ui.NewCol(0.6, d.throughputBar),
			ui.NewCol(0.4, d.failureList),
		),
	)
}

// SetCell switches the live panels to a new cell.
func (d *Dashboard) SetCell(target string, concurrency int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = fmt.Sprintf("%s @ %d clients", target, concurrency)
	d.rateHistory = d.rateHistory[:0]
	d.lastSample = sample{at: time.Now()}
}

// CellDone records a finished cell for the bar chart and failure list.
func (d *Dashboard) CellDone(c report.Cell) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cells = append(d.cells, c)
	d.throughputBar.Labels, d.throughputBar.Data = barData(d.cells)
	d.failureList.Rows = formatFailureRows(d.cells)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the loop once the suite has unwound.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(time.Now())
			d.render()
		}
	}
}

// update refreshes the live widgets from the progress source.
func (d *Dashboard) update(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := len(d.info.Targets) * len(d.info.Levels)
	d.summaryPara.Text = fmt.Sprintf("%s\nElapsed: %s | Cells: %d/%d",
		formatRunParams(d.info),
		now.Sub(d.startTime).Round(time.Second),
		len(d.cells), total,
	)

	if d.source == nil {
		d.cellPara.Text = fmt.Sprintf("%s\nLoad driven by the external benchmark tool", d.current)
		return
	}

	p := d.source.Progress()
	d.sessionGauge.Percent = sessionPercent(p)
	d.sessionGauge.Label = fmt.Sprintf("%d/%d", p.Completed, p.Concurrency)
	d.cellPara.Text = formatProgress(d.current, p)

	if rate, ok := instantRate(d.lastSample, sample{at: now, successes: p.Successes}); ok {
		d.rateHistory = append(d.rateHistory, rate)
		if len(d.rateHistory) > historyLimit {
			d.rateHistory = d.rateHistory[1:]
		}
		d.rateSparkline.Sparklines[0].Data = d.rateHistory
		d.rateSparkline.Title = fmt.Sprintf("Live Throughput | Current: %s msg/s", formatThroughput(rate))
	}
	d.lastSample = sample{at: now, successes: p.Successes}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// instantRate is the success rate between two samples. A drop in the
// counter means a new cell started and yields no point.
func instantRate(prev, cur sample) (float64, bool) {
	dt := cur.at.Sub(prev.at).Seconds()
	if prev.at.IsZero() || dt <= 0 || cur.successes < prev.successes {
		return 0, false
	}
	return float64(cur.successes-prev.successes) / dt, true
}

func sessionPercent(p loadgen.Progress) int {
	if p.Concurrency <= 0 {
		return 0
	}
	pct := int(p.Completed * 100 / int64(p.Concurrency))
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatProgress(cell string, p loadgen.Progress) string {
	avg := 0.0
	if secs := p.Elapsed.Seconds(); secs > 0 {
		avg = float64(p.Successes) / secs
	}
	return fmt.Sprintf(
		"Cell:              %s\nStarted sessions:  %d/%d\nFinished:          %d\nFailed:            %d\nMessages echoed:   %d\nAverage msg/s:     %s",
		cell,
		p.Started, p.Concurrency,
		p.Completed,
		p.Failed,
		p.Successes,
		formatThroughput(avg),
	)
}

func barData(cells []report.Cell) ([]string, []float64) {
	var labels []string
	var data []float64
	for _, c := range cells {
		if c.Metrics == nil {
			continue
		}
		labels = append(labels, fmt.Sprintf("%s@%d", shortName(c.Target), c.Concurrency))
		data = append(data, c.Metrics.Throughput)
	}
	return labels, data
}

func shortName(name string) string {
	name = strings.TrimSuffix(name, "_echo")
	if len(name) > 6 {
		return name[:6]
	}
	return name
}

func formatFailureRows(cells []report.Cell) []string {
	var rows []string
	for _, c := range cells {
		if c.Failure != nil {
			rows = append(rows, fmt.Sprintf("[%s@%d %s](fg:red) %s", c.Target, c.Concurrency, c.Failure.Stage, c.Failure.Error))
			continue
		}
		for _, b := range metrics.FlattenFailures(c.Metrics.Failures) {
			rows = append(rows, fmt.Sprintf("[%s@%d](fg:yellow) %s x%d", c.Target, c.Concurrency, b.Label, b.Count))
		}
	}
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > maxFailureRows {
		rows = rows[len(rows)-maxFailureRows:]
	}
	return rows
}

func formatThroughput(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case v >= 10_000:
		return fmt.Sprintf("%.0fk", v/1000)
	case v >= 1000:
		return fmt.Sprintf("%.1fk", v/1000)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// formatRunParams formats the suite parameters for display.
func formatRunParams(info RunInfo) string {
	var parts []string

	if info.Mode != "" {
		parts = append(parts, fmt.Sprintf("Mode: %s", info.Mode))
	}
	if len(info.Targets) > 0 {
		parts = append(parts, fmt.Sprintf("Targets: %s", strings.Join(info.Targets, ", ")))
	}
	if len(info.Levels) > 0 {
		levels := make([]string, len(info.Levels))
		for i, l := range info.Levels {
			levels[i] = fmt.Sprint(l)
		}
		parts = append(parts, fmt.Sprintf("Clients: %s", strings.Join(levels, ",")))
	}
	if info.MessageLength > 0 {
		parts = append(parts, fmt.Sprintf("Length: %dB", info.MessageLength))
	}
	if info.Messages > 0 {
		parts = append(parts, fmt.Sprintf("Messages: %d", info.Messages))
	} else if info.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", info.Duration))
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
