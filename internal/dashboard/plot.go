package dashboard

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gridsentry/gridwatch/internal/detect"
)

// handleConsumptionPNG renders a static PNG snapshot of the consumption
// history, for embedding or saving without a browser chart runtime.
func (s *Server) handleConsumptionPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	events := s.engine.Events()
	if len(events) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no readings in history")
		return
	}

	var buf bytes.Buffer
	if err := writeConsumptionPNG(&buf, events); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// writeConsumptionPNG plots consumption and risk over reading index.
func writeConsumptionPNG(w io.Writer, events []detect.Event) error {
	p := plot.New()
	p.Title.Text = "Electricity Consumption Pattern"
	p.X.Label.Text = "Reading"
	p.Y.Label.Text = "Consumption (kWh)"
	p.Add(plotter.NewGrid())

	consumption := make(plotter.XYs, len(events))
	risk := make(plotter.XYs, len(events))
	for i, e := range events {
		consumption[i].X = float64(i)
		consumption[i].Y = e.Consumption
		risk[i].X = float64(i)
		risk[i].Y = e.RiskScore
	}

	consumptionLine, err := plotter.NewLine(consumption)
	if err != nil {
		return fmt.Errorf("failed to build consumption line: %w", err)
	}
	consumptionLine.Color = color.RGBA{R: 84, G: 112, B: 198, A: 255}
	consumptionLine.Width = vg.Points(2)
	p.Add(consumptionLine)
	p.Legend.Add("consumption", consumptionLine)

	riskLine, err := plotter.NewLine(risk)
	if err != nil {
		return fmt.Errorf("failed to build risk line: %w", err)
	}
	riskLine.Color = color.RGBA{R: 238, G: 102, B: 102, A: 255}
	riskLine.Width = vg.Points(1)
	p.Add(riskLine)
	p.Legend.Add("risk score", riskLine)

	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
