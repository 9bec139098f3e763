package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tunogya/runqa/pkg/classify"
	"github.com/tunogya/runqa/pkg/data"
	"github.com/tunogya/runqa/pkg/metrics"
	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/pipeline"
)

// pass is one analysis pass plus the side inputs its reports need
type pass struct {
	result   *pipeline.Result
	contexts map[int]model.RunContext
	segments map[string][]data.SegmentCV
}

// runPass reads every configured input and analyses it
func (a *app) runPass(ctx context.Context) (*pass, error) {
	in := a.cfg.Inputs

	defs, err := data.ReadMetricsConfFile(in.MetricsConf)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Loaded metric list", zap.String("path", in.MetricsConf), zap.Int("metrics", len(defs)))

	thresholds := map[string]model.Threshold{}
	if in.Thresholds != "" {
		if thresholds, err = data.ReadThresholdsFile(in.Thresholds); err != nil {
			return nil, err
		}
		a.logger.Info("Loaded thresholds", zap.Int("metrics", len(thresholds)))
	}

	var contexts map[int]model.RunContext
	if in.RunContext != "" {
		if contexts, err = data.ReadRunContextFile(in.RunContext); err != nil {
			return nil, err
		}
		a.logger.Info("Loaded run context", zap.Int("runs", len(contexts)))
	}

	var rules *classify.RuleSet
	if in.Rules != "" {
		if rules, err = classify.LoadRules(in.Rules); err != nil {
			return nil, err
		}
		for _, problem := range rules.Problems() {
			a.logger.Warn("Skipping rule", zap.Error(problem))
		}
		metrics.RulesSkipped.Add(float64(len(rules.Problems())))
	}

	var provider data.SeriesProvider
	var segProvider *data.SegmentProvider
	if in.SegmentsPattern != "" {
		segProvider = data.NewSegmentProvider(in.DataDir, in.SegmentsPattern, defs)
		provider = segProvider
	} else {
		provider = data.NewCSVProvider(in.DataDir, in.PerRunPattern)
	}

	runner := pipeline.NewRunner(a.cfg.Pipeline(), rules,
		pipeline.WithLogger(a.logger),
		pipeline.WithWorkers(a.cfg.Analysis.Workers),
	)

	inputs, err := runner.LoadInputs(ctx, provider, data.MetricNames(defs), thresholds)
	if err != nil {
		return nil, err
	}

	res, err := runner.Run(ctx, inputs, contexts)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	p := &pass{result: res, contexts: contexts}
	if segProvider != nil {
		p.segments = segProvider.Consistency()
	}
	return p, nil
}
