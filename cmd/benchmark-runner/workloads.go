package main

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/analytics"
	"database-benchmark/internal/workloads/ecommerce"
	"database-benchmark/internal/workloads/fixture"
	"database-benchmark/internal/workloads/socialmedia"
)

type workload struct {
	provider   func(db database.Driver, logger *log.Logger) runner.Provider
	benchmarks func(db database.Driver, scale runner.Scale, opts fixture.Options) []runner.Benchmark
}

var workloads = map[string]workload{
	ecommerce.ScenarioName: {
		provider:   func(db database.Driver, l *log.Logger) runner.Provider { return ecommerce.NewProvider(db, l) },
		benchmarks: ecommerce.Benchmarks,
	},
	socialmedia.ScenarioName: {
		provider:   func(db database.Driver, l *log.Logger) runner.Provider { return socialmedia.NewProvider(db, l) },
		benchmarks: socialmedia.Benchmarks,
	},
	analytics.ScenarioName: {
		provider:   func(db database.Driver, l *log.Logger) runner.Provider { return analytics.NewProvider(db, l) },
		benchmarks: analytics.Benchmarks,
	},
}

func workloadNames() []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// selectBenchmarks picks test out of all, or every benchmark when test is
// empty.
func selectBenchmarks(all []runner.Benchmark, workloadName, test string) ([]runner.Benchmark, error) {
	if test == "" {
		return all, nil
	}
	for _, b := range all {
		if strings.TrimPrefix(b.Name, workloadName+"/") == test {
			return []runner.Benchmark{b}, nil
		}
	}
	return nil, fmt.Errorf("unsupported workload/test: %s/%s", workloadName, test)
}
