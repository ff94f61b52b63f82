// Package fallback returns the hand-authored baseline payload for each report stage.
// Every function is pure: the result depends only on its arguments and each call
// returns freshly allocated slices, so callers may mutate what they receive.
package fallback

import (
	"fmt"

	"github.com/jonathan/market-research/internal/types"
)

// Plan returns the baseline research plan.
func Plan(_ *types.ResearchRequest) types.Plan {
	return types.Plan{
		Sections: []string{
			"Executive Summary",
			"Market Overview",
			"Competitive Landscape",
			"Regional Analysis",
			"Future Outlook",
		},
		DataPoints: []string{
			"Market size and growth rate",
			"Key players and market share",
			"Regional distribution",
			"Technology trends",
			"Consumer preferences",
			"Regulatory environment",
		},
		Sources: []string{
			"Industry reports",
			"Company financial statements",
			"News articles",
			"Government publications",
			"Expert interviews",
		},
	}
}

// Collect returns the baseline market data set.
func Collect(_ *types.ResearchRequest) types.MarketData {
	return types.MarketData{
		MarketSize: types.MarketSize{
			Years:  []int{2021, 2022, 2023, 2024, 2025, 2026, 2027, 2028, 2029, 2030},
			Values: []float64{250, 350, 480, 630, 780, 950, 1120, 1300, 1500, 1750},
			CAGR:   21.7,
		},
		Competitors: []types.Share{
			{Name: "Company A", Share: 18},
			{Name: "Company B", Share: 12},
			{Name: "Company C", Share: 10},
			{Name: "Company D", Share: 8},
			{Name: "Company E", Share: 7},
			{Name: "Company F", Share: 6},
			{Name: "Company G", Share: 5},
			{Name: "Company H", Share: 4},
			{Name: "Company I", Share: 4},
			{Name: "Others", Share: 26},
		},
		Regions: []types.Share{
			{Name: "North America", Share: 35},
			{Name: "Europe", Share: 25},
			{Name: "Asia Pacific", Share: 30},
			{Name: "Rest of World", Share: 10},
		},
		Trends: []types.Trend{
			{Name: "Trend A", Data: []float64{132, 118, 110, 105, 100, 92, 85, 78, 72, 65}},
			{Name: "Trend B", Data: []float64{12, 14, 16, 18, 20, 28, 36, 44, 52, 58}},
			{Name: "Trend C", Data: []float64{6.8, 9.5, 12.8, 16.2, 20.5, 25.0, 30.2, 36.0, 42.5, 50.0}},
		},
		News: []types.NewsItem{
			{Title: "Industry News 1", Source: "News Source A", Date: "2025-04-01", Sentiment: "positive"},
			{Title: "Industry News 2", Source: "News Source B", Date: "2025-03-15", Sentiment: "neutral"},
			{Title: "Industry News 3", Source: "News Source C", Date: "2025-03-01", Sentiment: "negative"},
		},
	}
}

// Analyze returns the baseline analysis, templated on the request's industry and the
// growth rate of the collected data.
func Analyze(req *types.ResearchRequest, data types.MarketData) types.Analysis {
	industry := req.Industry
	cagr := formatRate(data.MarketSize.CAGR)

	return types.Analysis{
		Summary: fmt.Sprintf("The %s industry is experiencing rapid growth, driven by technological advancements, "+
			"changing consumer preferences, and favorable regulatory environment. This report provides a comprehensive "+
			"analysis of market trends, key players, and future outlook.", industry),
		Sections: []types.Section{
			{
				Title: "Executive Summary",
				Content: fmt.Sprintf("The global %s market is projected to grow at a CAGR of %s%% from 2025 to 2030, "+
					"reaching a value of $1.75 trillion by 2030. Major factors driving this growth include technological "+
					"innovation, increasing demand, and strategic investments. Company A continues to lead the market with "+
					"approximately 18%% market share, followed by Company B, Company C, and Company D. North America remains "+
					"the largest market, while Asia Pacific is experiencing the fastest growth rate.", industry, cagr),
			},
			{
				Title: "Market Overview",
				Content: fmt.Sprintf("The %s market encompasses various segments and applications. The market has shown "+
					"consistent growth over the past five years, with acceleration expected in the coming decade. The average "+
					"cost of key components has decreased significantly, reaching price parity thresholds that enable mass "+
					"market adoption. Consumer awareness and acceptance continue to improve, further driving market expansion.",
					industry),
			},
			{
				Title: "Competitive Landscape",
				Content: fmt.Sprintf("The %s market features a mix of established players and new entrants. Company A "+
					"maintains its leadership position with strong brand recognition and advanced technology. Companies from "+
					"Asia are rapidly expanding globally. Traditional industry participants including Companies C, D, and E "+
					"have committed to significant investments in new technologies and capabilities. New entrants such as "+
					"Companies G and H are focusing on premium segments with innovative designs and technologies. Strategic "+
					"partnerships between various stakeholders are increasingly common.", industry),
			},
			{
				Title: "Regional Analysis",
				Content: "North America remains the largest market, accounting for 35% of global revenue, supported by strong " +
					"innovation ecosystem and consumer adoption. Europe represents 25% of the global market, with certain " +
					"countries showing particularly high penetration rates. Asia Pacific accounts for 30% of global sales, " +
					"with growth accelerating due to increasing middle class and supportive government policies. Other " +
					"regions are experiencing varied growth patterns, with select markets showing significant potential.",
			},
			{
				Title: "Future Outlook",
				Content: fmt.Sprintf("The %s market is expected to continue its rapid growth trajectory, with several key "+
					"trends shaping its future. New technologies are projected to reach commercial viability by 2027, "+
					"potentially transforming the competitive landscape. Integration with complementary technologies will "+
					"create new use cases and market opportunities. Infrastructure development is expected to expand "+
					"significantly, with global deployment projected to increase threefold by 2030. New business models will "+
					"enable additional revenue streams for market participants.", industry),
			},
		},
		KeyInsights: []string{
			fmt.Sprintf("The %s market is growing at %s%% annually, significantly outpacing the broader economy", industry, cagr),
			"Company A leads with 18% market share, but faces increasing competition from Companies B and C",
			"North America remains the largest market, but Asia Pacific is growing fastest at 28% annually",
			"Three critical trends are reshaping the industry: technological innovation, changing consumer preferences, and regulatory developments",
			"Future growth will be driven by new applications, cost reductions, and infrastructure development",
		},
	}
}

// trendUnits labels the baseline trend series for charting.
var trendUnits = map[string]string{
	"Trend A": "Trend A ($/unit)",
	"Trend B": "Trend B (millions)",
	"Trend C": "Trend C ($ billions)",
}

// Visualize projects the chartable subset out of collected data. Baseline trend
// series get their unit labels; other series keep their names.
func Visualize(data types.MarketData) types.Visualizations {
	viz := types.Visualizations{
		MarketSize:  data.MarketSize,
		Competitors: data.Competitors,
		Trends:      data.Trends,
	}.Clone()
	for i, trend := range viz.Trends {
		if label, ok := trendUnits[trend.Name]; ok {
			viz.Trends[i].Name = label
		}
	}
	return viz
}

// Compile merges the analysis prose with the visualization payload unchanged.
func Compile(analysis types.Analysis, viz types.Visualizations) types.Results {
	return types.Results{
		Summary:        analysis.Summary,
		Sections:       append([]types.Section(nil), analysis.Sections...),
		Visualizations: viz.Clone(),
	}
}

// formatRate renders a growth rate without trailing zeros (21.7, not 21.700000).
func formatRate(v float64) string {
	return fmt.Sprintf("%g", v)
}
