package analyzer

import (
	"fmt"
	"math"
)

// CostRates are the unit prices used to convert resource usage into money.
// CPU, memory and storage are billed per hour of execution; network is billed
// per transferred gigabyte.
type CostRates struct {
	CPUPerCoreHour   float64
	MemoryPerGBHour  float64
	StoragePerGBHour float64
	NetworkPerGB     float64
}

// DefaultCostRates mirror common on-demand cloud pricing.
func DefaultCostRates() CostRates {
	return CostRates{
		CPUPerCoreHour:   0.048,
		MemoryPerGBHour:  0.012,
		StoragePerGBHour: 0.0002,
		NetworkPerGB:     0.09,
	}
}

// CostAnalyzer prices executions and looks for optimization opportunities.
type CostAnalyzer struct {
	Rates CostRates
	trend *TrendAnalyzer
}

// NewCostAnalyzer returns an analyzer using the given rates and the trend
// analyzer for cost history.
func NewCostAnalyzer(rates CostRates, trend *TrendAnalyzer) *CostAnalyzer {
	return &CostAnalyzer{Rates: rates, trend: trend}
}

// Analyze prices one execution's resource usage over executionHours and, when
// a cost history is supplied with enough points, fits its trend. costHistory
// carries per-execution total cost as the value column.
func (c *CostAnalyzer) Analyze(usage ResourceUsage, executionHours float64, costHistory []DataPoint) (*CostResult, error) {
	if executionHours <= 0 {
		return nil, fmt.Errorf("%w: execution duration must be positive", ErrInvalidInput)
	}

	hourly := usage.CPUCores*c.Rates.CPUPerCoreHour +
		usage.MemoryGB*c.Rates.MemoryPerGBHour +
		usage.StorageGB*c.Rates.StoragePerGBHour
	totalCost := hourly*executionHours + usage.NetworkGB*c.Rates.NetworkPerGB

	result := &CostResult{
		TotalCost:           totalCost,
		CostPerMinute:       totalCost / (executionHours * 60),
		Opportunities:       c.findOpportunities(usage, executionHours, totalCost),
		ResourceUtilization: (usage.CPUUtilization + usage.MemoryUtilization) / 2,
		Efficiency:          c.scoreEfficiency(usage, executionHours),
	}

	if c.trend != nil && len(costHistory) >= c.trend.MinDataPoints {
		trend, err := c.trend.Analyze(costHistory)
		if err == nil {
			result.CostTrend = trend
		}
	}

	return result, nil
}

func (c *CostAnalyzer) findOpportunities(usage ResourceUsage, executionHours, totalCost float64) []Opportunity {
	var opportunities []Opportunity

	if usage.CPUUtilization > 0 && usage.CPUUtilization < 50 {
		opportunities = append(opportunities, Opportunity{
			Kind:             "cpu-downsize",
			Description:      fmt.Sprintf("CPU utilization averaged %.0f%%; a smaller instance class would likely suffice", usage.CPUUtilization),
			EstimatedSavings: totalCost * 0.3,
		})
	}

	if usage.MemoryUtilization > 0 && usage.MemoryUtilization < 40 {
		opportunities = append(opportunities, Opportunity{
			Kind:             "memory-downsize",
			Description:      fmt.Sprintf("Memory utilization averaged %.0f%%; reduce the requested memory", usage.MemoryUtilization),
			EstimatedSavings: totalCost * 0.2,
		})
	}

	if executionHours > 1 {
		opportunities = append(opportunities, Opportunity{
			Kind:             "duration",
			Description:      "Execution exceeds one hour; caching or stage parallelism would cut billed time",
			EstimatedSavings: totalCost * 0.25,
		})
	}

	if usage.NetworkGB > 10 {
		opportunities = append(opportunities, Opportunity{
			Kind:             "network-transfer",
			Description:      fmt.Sprintf("%.1f GB transferred; co-locating artifacts with runners avoids egress charges", usage.NetworkGB),
			EstimatedSavings: usage.NetworkGB * c.Rates.NetworkPerGB * 0.8,
		})
	}

	return opportunities
}

// scoreEfficiency starts from 100, penalizes idle resources and long runs,
// and rewards the 70-85% balanced utilization band.
func (c *CostAnalyzer) scoreEfficiency(usage ResourceUsage, executionHours float64) Efficiency {
	score := 100.0
	var recommendations []string

	if usage.CPUUtilization < 50 {
		score -= (50 - usage.CPUUtilization) * 0.5
		recommendations = append(recommendations, "Request fewer CPU cores or batch more work per run")
	}
	if usage.MemoryUtilization < 50 {
		score -= (50 - usage.MemoryUtilization) * 0.3
		recommendations = append(recommendations, "Lower the memory request to match observed usage")
	}
	if executionHours > 1 {
		score -= math.Min(20, (executionHours-1)*5)
		recommendations = append(recommendations, "Shorten execution time through caching and parallel stages")
	}

	if usage.CPUUtilization >= 70 && usage.CPUUtilization <= 85 {
		score += 10
	}

	score = math.Max(0, math.Min(100, score))

	if len(recommendations) == 0 {
		recommendations = append(recommendations, "Resource usage is well balanced; no action needed")
	}

	return Efficiency{
		Score:           score,
		Recommendations: recommendations,
	}
}
