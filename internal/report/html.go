package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/theirongolddev/tburn/internal/pipeline"
)

const (
	chartHeight = "420px"
	topTickets  = 20
	// missing is how echarts marks a gap in a series.
	missing = "-"
)

// WriteHTML renders the report as a standalone page of charts.
func WriteHTML(w io.Writer, rep *pipeline.Report) error {
	page := components.NewPage()
	page.PageTitle = "tburn weekly report"
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		tokensChart(rep),
		efficiencyChart(rep),
		deliveryChart(rep),
		ticketChart(rep),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

func weekLabels(rep *pipeline.Report) []string {
	labels := make([]string, len(rep.Buckets))
	for i, b := range rep.Buckets {
		labels[i] = b.Week.Name
	}
	return labels
}

func baseOpts(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	}
}

func tokensChart(rep *pipeline.Report) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseOpts("Tokens per week", "Attributed to tickets whose PR was opened that week")...)

	tokens := make([]opts.BarData, len(rep.Buckets))
	points := make([]opts.BarData, len(rep.Buckets))
	for i, b := range rep.Buckets {
		tokens[i] = opts.BarData{Value: b.TotalTokens}
		points[i] = opts.BarData{Value: b.TotalStoryPoints}
	}

	bar.SetXAxis(weekLabels(rep)).
		AddSeries("Tokens", tokens).
		AddSeries("Story points", points)
	return bar
}

func efficiencyChart(rep *pipeline.Report) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(baseOpts("Tokens per story point", "Only tickets with both tokens and an estimate")...)

	data := make([]opts.LineData, len(rep.Buckets))
	for i, b := range rep.Buckets {
		data[i] = opts.LineData{Value: missing}
		if v := b.Derived.TokensPerStoryPoint; v != nil {
			data[i] = opts.LineData{Value: *v}
		}
	}

	line.SetXAxis(weekLabels(rep)).
		AddSeries("Tokens / point", data,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ConnectNulls: opts.Bool(false)}),
		)
	return line
}

func deliveryChart(rep *pipeline.Report) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseOpts("Pull requests", "Merged PRs placed by creation week")...)

	prs := make([]opts.BarData, len(rep.Buckets))
	features := make([]opts.BarData, len(rep.Buckets))
	cycle := make([]opts.BarData, len(rep.Buckets))
	for i, b := range rep.Buckets {
		prs[i] = opts.BarData{Value: b.PRCount}
		features[i] = opts.BarData{Value: b.FeaturePRCount}
		cycle[i] = opts.BarData{Value: missing}
		if b.AvgCycleTimeDays != nil {
			cycle[i] = opts.BarData{Value: fmt.Sprintf("%.2f", *b.AvgCycleTimeDays)}
		}
	}

	bar.SetXAxis(weekLabels(rep)).
		AddSeries("PRs", prs).
		AddSeries("Feature PRs", features).
		AddSeries("Avg cycle time (days)", cycle)
	return bar
}

func ticketChart(rep *pipeline.Report) *charts.Bar {
	rows := TicketRows(rep)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalTokens > rows[j].TotalTokens })
	if len(rows) > topTickets {
		rows = rows[:topTickets]
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(append(baseOpts("Top tickets", fmt.Sprintf("Largest %d tickets by tokens", len(rows))),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 45}}),
	)...)

	labels := make([]string, len(rows))
	data := make([]opts.BarData, len(rows))
	for i, r := range rows {
		labels[i] = r.Ticket
		data[i] = opts.BarData{Value: r.TotalTokens}
	}
	bar.SetXAxis(labels).AddSeries("Tokens", data)
	return bar
}
