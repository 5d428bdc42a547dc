package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bbiangul/ragcore"
)

// Evaluator runs a Dataset against a ragcore engine and scores the results.
type Evaluator struct {
	engine ragcore.Engine
}

// NewEvaluator builds an Evaluator bound to an already-populated engine.
func NewEvaluator(engine ragcore.Engine) *Evaluator {
	return &Evaluator{engine: engine}
}

// Report aggregates one Dataset run.
type Report struct {
	Dataset    string
	Difficulty string
	TotalTests int
	Passed     int
	Failed     int
	RunTime    time.Duration

	Metrics         AggregateMetrics
	CategoryMetrics map[string]AggregateMetrics
	Results         []TestResult
}

// AggregateMetrics averages the per-test metrics across a report or category.
type AggregateMetrics struct {
	AvgAccuracy      float64
	AvgContextRecall float64
	AvgRelevance     float64
}

// TestResult is one TestCase's outcome.
type TestResult struct {
	Question      string
	Category      string
	ExpectedFacts []string
	WantAbstain   bool

	Passed bool
	Error  string

	Accuracy      float64
	ContextRecall float64
	Relevance     float64
	Abstained     bool
	ElapsedMs     int64

	SourceCount int
}

// Run executes every TestCase in dataset against the bound engine and
// returns an aggregate Report.
func (e *Evaluator) Run(ctx context.Context, dataset Dataset, opts ...ragcore.QueryOption) (*Report, error) {
	start := time.Now()
	report := &Report{
		Dataset:         dataset.Name,
		Difficulty:      dataset.Difficulty,
		TotalTests:      len(dataset.Tests),
		CategoryMetrics: make(map[string]AggregateMetrics),
	}

	catCounts := make(map[string]int)
	catSums := make(map[string]AggregateMetrics)
	metricsCount := 0

	for i, test := range dataset.Tests {
		result := e.runTest(ctx, test, opts...)
		report.Results = append(report.Results, result)

		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		slog.Info("eval: test complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(dataset.Tests)),
			"status", status,
			"accuracy", fmt.Sprintf("%.2f", result.Accuracy),
			"elapsed_ms", result.ElapsedMs,
			"question", truncate(test.Question, 80))

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}

		if result.Error != "" {
			continue
		}

		metricsCount++
		report.Metrics.AvgAccuracy += result.Accuracy
		report.Metrics.AvgContextRecall += result.ContextRecall
		report.Metrics.AvgRelevance += result.Relevance

		if test.Category != "" {
			catCounts[test.Category]++
			sum := catSums[test.Category]
			sum.AvgAccuracy += result.Accuracy
			sum.AvgContextRecall += result.ContextRecall
			sum.AvgRelevance += result.Relevance
			catSums[test.Category] = sum
		}
	}

	if n := float64(metricsCount); n > 0 {
		report.Metrics.AvgAccuracy /= n
		report.Metrics.AvgContextRecall /= n
		report.Metrics.AvgRelevance /= n
	}

	for cat, count := range catCounts {
		cn := float64(count)
		sum := catSums[cat]
		report.CategoryMetrics[cat] = AggregateMetrics{
			AvgAccuracy:      sum.AvgAccuracy / cn,
			AvgContextRecall: sum.AvgContextRecall / cn,
			AvgRelevance:     sum.AvgRelevance / cn,
		}
	}

	report.RunTime = time.Since(start)
	return report, nil
}

func (e *Evaluator) runTest(ctx context.Context, test TestCase, opts ...ragcore.QueryOption) TestResult {
	testStart := time.Now()
	result := TestResult{
		Question:      test.Question,
		Category:      test.Category,
		ExpectedFacts: test.ExpectedFacts,
		WantAbstain:   test.WantAbstain,
	}

	ans, err := e.engine.Query(ctx, test.Question, opts...)
	result.ElapsedMs = time.Since(testStart).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Abstained = ans.Abstained
	result.SourceCount = len(ans.Sources)

	if test.WantAbstain {
		result.Passed = ans.Abstained
		return result
	}

	if ans.Abstained {
		result.Passed = false
		result.Error = "unexpected abstain: " + ans.Clarification
		return result
	}

	result.Accuracy = computeAccuracy(ans, test.ExpectedFacts)
	result.ContextRecall = computeContextRecall(ans, test.ExpectedFacts)
	result.Relevance = computeRelevance(ans, test.Question)
	result.Passed = result.Accuracy >= 0.5
	return result
}

// FormatReport renders a Report as a plain-text summary, most useful case
// (pass/fail counts and aggregate metrics) first, per-test detail last.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	if r.Difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", r.Difficulty)
	}
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  Accuracy:       %.2f\n", r.Metrics.AvgAccuracy)
	fmt.Fprintf(&b, "  Context Recall: %.2f\n", r.Metrics.AvgContextRecall)
	fmt.Fprintf(&b, "  Relevance:      %.2f\n\n", r.Metrics.AvgRelevance)

	if len(r.CategoryMetrics) > 0 {
		cats := make([]string, 0, len(r.CategoryMetrics))
		for cat := range r.CategoryMetrics {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.CategoryMetrics[cat]
			fmt.Fprintf(&b, "  [%s] Acc=%.2f CtxR=%.2f Rel=%.2f\n", cat, m.AvgAccuracy, m.AvgContextRecall, m.AvgRelevance)
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", status, i+1, res.Question)
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(&b, "  Acc=%.2f CtxR=%.2f Rel=%.2f Sources=%d (%dms)\n",
			res.Accuracy, res.ContextRecall, res.Relevance, res.SourceCount, res.ElapsedMs)
	}

	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(passed) / float64(total)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
