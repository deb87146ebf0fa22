package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/torosent/echobench/internal/report"
	"github.com/torosent/echobench/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           *report.Report
	Targets          []string
	Levels           []int
	ChartJSON        string
	Cells            []report.Cell
	Failures         []report.Cell
	ThresholdSummary *ThresholdSummary
}

// ThresholdSummary aggregates threshold outcomes across all cells.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []ThresholdResultJSON
}

// ThresholdResultJSON is one threshold outcome for one cell.
type ThresholdResultJSON struct {
	Target      string  `json:"target"`
	Concurrency int     `json:"concurrency"`
	Threshold   string  `json:"threshold"`
	Metric      string  `json:"metric"`
	Aggregate   string  `json:"aggregate"`
	Operator    string  `json:"operator"`
	Expected    float64 `json:"expected"`
	Actual      float64 `json:"actual"`
	Pass        bool    `json:"pass"`
}

// chartData is the uPlot input: one x column of concurrency levels and one
// y column per target. Levels a target has no successful cell for are null.
type chartData struct {
	Labels []string     `json:"labels"`
	Data   [][]*float64 `json:"data"`
}

// GenerateHTMLReport writes a standalone HTML page with a throughput versus
// concurrency chart, the cell table, failures and threshold outcomes.
func GenerateHTMLReport(w io.Writer, rep *report.Report, thresholdResults []threshold.CellResult) error {
	series := rep.Series()
	levels := chartLevels(series)

	chart := chartData{Labels: []string{"Clients"}, Data: [][]*float64{floatColumn(levels)}}
	for _, s := range series {
		byLevel := make(map[int]float64, len(s.Points))
		for _, p := range s.Points {
			byLevel[p.Concurrency] = p.Throughput
		}
		col := make([]*float64, len(levels))
		for i, lvl := range levels {
			if v, ok := byLevel[lvl]; ok {
				col[i] = &v
			}
		}
		chart.Labels = append(chart.Labels, s.Target)
		chart.Data = append(chart.Data, col)
	}
	chartJSON, err := json.Marshal(chart)
	if err != nil {
		return fmt.Errorf("failed to marshal chart data: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           rep,
		Targets:          rep.Targets(),
		Levels:           levels,
		ChartJSON:        string(chartJSON),
		Cells:            rep.Succeeded(),
		Failures:         rep.Failures(),
		ThresholdSummary: summarizeThresholds(thresholdResults),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatDuration": func(d time.Duration) string {
			return d.String()
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

func summarizeThresholds(cells []threshold.CellResult) *ThresholdSummary {
	var summary *ThresholdSummary
	for _, cell := range cells {
		for _, tr := range cell.Results {
			if summary == nil {
				summary = &ThresholdSummary{}
			}
			summary.Total++
			if tr.Pass {
				summary.Passed++
			} else {
				summary.Failed++
			}
			summary.Results = append(summary.Results, ThresholdResultJSON{
				Target:      cell.Target,
				Concurrency: cell.Concurrency,
				Threshold:   tr.Threshold.Raw,
				Metric:      tr.Threshold.Metric,
				Aggregate:   tr.Threshold.Aggregate,
				Operator:    tr.Threshold.Operator,
				Expected:    tr.Threshold.Value,
				Actual:      tr.Actual,
				Pass:        tr.Pass,
			})
		}
	}
	return summary
}

func chartLevels(series []report.Series) []int {
	seen := make(map[int]bool)
	var levels []int
	for _, s := range series {
		for _, p := range s.Points {
			if !seen[p.Concurrency] {
				seen[p.Concurrency] = true
				levels = append(levels, p.Concurrency)
			}
		}
	}
	sort.Ints(levels)
	return levels
}

func floatColumn(values []int) []*float64 {
	col := make([]*float64, len(values))
	for i, v := range values {
		f := float64(v)
		col[i] = &f
	}
	return col
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Echo Server Comparison</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.success {
            border-left-color: #10b981;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            background: white;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 {
            font-size: 1.1rem;
            margin-bottom: 15px;
            color: #4b5563;
        }
        .chart {
            width: 100%;
            height: 300px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>Echo Server Comparison</h1>
            <div class="meta">Run {{.Report.RunID}} | Generated: {{.GeneratedAt}}</div>
            <div class="meta">Mode: {{.Report.Workload.Mode}} | Message length: {{.Report.Workload.MessageLength}} bytes{{if .Report.Workload.Messages}} | {{.Report.Workload.Messages}} messages per client{{else if .Report.Workload.Duration}} | {{formatDuration .Report.Workload.Duration}} per client{{end}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Targets</h3>
                    <div class="value">{{len .Targets}}</div>
                </div>
                <div class="card">
                    <h3>Concurrency Levels</h3>
                    <div class="value">{{len .Levels}}</div>
                </div>
                <div class="card success">
                    <h3>Completed Cells</h3>
                    <div class="value">{{len .Cells}}</div>
                </div>
                <div class="card error">
                    <h3>Failed Cells</h3>
                    <div class="value">{{len .Failures}}</div>
                </div>
            </div>

            <div class="section">
                <h2>Throughput vs Concurrency</h2>
                {{if .Cells}}
                <div class="chart-container">
                    <h3>Messages per second</h3>
                    <div id="throughput-chart" class="chart"></div>
                </div>
                {{else}}
                <div class="no-data">No cell produced a throughput figure.</div>
                {{end}}
            </div>

            {{if .Cells}}
            <div class="section">
                <h2>Cells</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Target</th>
                            <th>Clients</th>
                            <th>Msg/s</th>
                            <th>Mean (ms)</th>
                            <th>P50 (ms)</th>
                            <th>P99 (ms)</th>
                            <th>Failed Sessions</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Cells}}
                        <tr>
                            <td><strong>{{.Target}}</strong></td>
                            <td>{{.Concurrency}}</td>
                            <td>{{formatFloat .Metrics.Throughput}}</td>
                            <td>{{formatFloat .Metrics.MeanLatencyMs}}</td>
                            <td>{{formatFloat .Metrics.P50LatencyMs}}</td>
                            <td>{{formatFloat .Metrics.P99LatencyMs}}</td>
                            <td>{{.Metrics.FailedSessions}}/{{.Metrics.Sessions}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Failures}}
            <div class="section">
                <h2>Failed Cells</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Target</th>
                            <th>Clients</th>
                            <th>Stage</th>
                            <th>Error</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Failures}}
                        <tr>
                            <td><strong>{{.Target}}</strong></td>
                            <td>{{.Concurrency}}</td>
                            <td><span class="badge badge-error">{{.Failure.Stage}}</span></td>
                            <td>{{.Failure.Error}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Cell</th>
                            <th>Threshold</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Target}} @ {{.Concurrency}}</td>
                            <td>{{.Threshold}}</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">PASS</span>
                                {{else}}
                                <span class="badge badge-error">FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .Cells}}
    <script>
        const chartJSON = {{.ChartJSON}};
        const chart = JSON.parse(chartJSON);
        const palette = ["#667eea", "#10b981", "#f59e0b", "#ef4444", "#764ba2", "#0ea5e9"];

        const series = [{ label: chart.labels[0] }];
        for (let i = 1; i < chart.labels.length; i++) {
            series.push({
                label: chart.labels[i],
                stroke: palette[(i - 1) % palette.length],
                width: 2,
                points: { show: true, size: 6 },
                spanGaps: true
            });
        }

        const el = document.getElementById('throughput-chart');
        new uPlot({
            width: el.offsetWidth,
            height: 360,
            scales: { x: { time: false, distr: 3 } },
            series: series,
            axes: [
                { label: "Concurrent clients" },
                { label: "Messages/sec" }
            ]
        }, chart.data, el);
    </script>
    {{end}}
</body>
</html>
`
