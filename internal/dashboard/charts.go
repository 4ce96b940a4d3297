package dashboard

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleConsumptionChart renders the live dual-axis chart (HTML) of the
// current history: consumption in kWh on the left axis, risk score on the
// right. The page theme follows the persisted dark-mode preference.
func (s *Server) handleConsumptionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := s.engine.Snapshot()
	series := PrepareChartSeries(snap.Events)

	theme := "white"
	if s.prefs != nil {
		if dark, err := s.prefs.DarkMode(); err == nil && dark {
			theme = "dark"
		}
	}

	consumption := make([]opts.LineData, len(series.Consumption))
	for i, v := range series.Consumption {
		consumption[i] = opts.LineData{Value: v}
	}
	risk := make([]opts.LineData, len(series.Risk))
	for i, v := range series.Risk {
		risk[i] = opts.LineData{Value: v}
	}

	subtitle := fmt.Sprintf("mode=%s readings=%d anomalies=%d connected=%t",
		snap.Mode, len(series.Labels), series.Anomalies, snap.Connected)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Electricity Consumption", Theme: theme, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Electricity Consumption Pattern", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Consumption (kWh)", Type: "value"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "Risk Score (%)", Type: "value", Min: 0, Max: 100})

	line.SetXAxis(series.Labels).
		AddSeries("consumption", consumption,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#5470c6"}),
		).
		AddSeries("risk score", risk,
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1, Smooth: opts.Bool(true)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ee6666"}),
		)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
