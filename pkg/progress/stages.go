package progress

import (
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/pkg/models"
)

// stageDef couples a wire-visible step with the detection keywords used to
// map free-form log messages back onto it.
type stageDef struct {
	step     models.ProgressStep
	keywords []string
}

// Aggregate phase weights before normalization.
const (
	prepWeight       = 0.15
	analystsWeight   = 0.60
	viewsWeight      = 0.17
	adviceWeight     = 0.06
	strategiesWeight = 0.13
	riskNoticeWeight = 0.05
	finalizeWeight   = 0.04
)

// generateStages builds the weighted stage list for a run from the selected
// agents and research depth. Weights are normalized to sum to exactly 1.
func generateStages(agents []models.AgentRole, depth int) []stageDef {
	var defs []stageDef
	add := func(name, description string, weight float64, keywords ...string) {
		defs = append(defs, stageDef{
			step:     models.ProgressStep{Name: name, Description: description, Weight: weight},
			keywords: keywords,
		})
	}

	// Preparation phase.
	prep := prepWeight / 5
	add("validate", "Validating analysis request", prep, "validat")
	add("env_check", "Checking environment and providers", prep, "environment", "env check")
	add("cost_estimate", "Estimating analysis cost", prep, "cost estimate", "estimating cost")
	add("configure", "Configuring analyst team", prep, "configur")
	add("init_engine", "Initializing analysis engine", prep, "initializ", "engine ready")

	// One stage per selected analyst.
	if len(agents) > 0 {
		per := analystsWeight / float64(len(agents))
		for _, agent := range agents {
			add(agent.Key+"_analysis",
				fmt.Sprintf("%s working", agent.DisplayName),
				per,
				agent.Key, strings.ToLower(agent.DisplayName))
		}
	}

	// Research views for deeper runs.
	if depth >= 2 {
		per := viewsWeight / 3
		add("bull_view", "Building the bull case", per, "bull")
		add("bear_view", "Building the bear case", per, "bear")
		add("view_synthesis", "Synthesizing opposing views", per, "synthesi")
	}

	add("investment_advice", "Formulating investment advice", adviceWeight, "investment advice", "advice")

	if depth >= 3 {
		per := strategiesWeight / 4
		add("aggressive_strategy", "Drafting aggressive strategy", per, "aggressive")
		add("conservative_strategy", "Drafting conservative strategy", per, "conservative")
		add("balanced_strategy", "Drafting balanced strategy", per, "balanced")
		add("risk_controls", "Defining risk controls", per, "risk control")
	} else {
		add("risk_notice", "Preparing risk notice", riskNoticeWeight, "risk notice")
	}

	add("report_assembly", "Assembling the final report", finalizeWeight, "report", "final")

	normalize(defs)
	return defs
}

// normalize rescales weights so they sum to exactly 1.
func normalize(defs []stageDef) {
	sum := 0.0
	for _, d := range defs {
		sum += d.step.Weight
	}
	if sum == 0 {
		return
	}
	for i := range defs {
		defs[i].step.Weight /= sum
	}
}

// EstimateTotalSec is the initial duration heuristic: preparation overhead
// plus per-analyst time scaled by research depth.
func EstimateTotalSec(analysts, depth int) float64 {
	if depth < 1 {
		depth = 1
	}
	perAnalyst := 10.0 + 5.0*float64(depth)
	depthFactor := 1.0 + 0.2*float64(depth-1)
	return 10.0 + float64(analysts)*perAnalyst*depthFactor
}
