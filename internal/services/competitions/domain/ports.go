// Package domain holds the ports of the competition stage
package domain

import (
	"context"
	"iter"

	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/core/report"
)

// RunnerPort is what the CLI calls
type RunnerPort interface {
	Run(ctx context.Context, outputPath, exclusionPath string) (*report.Report, error)
}

// Lister enumerates every competition on the platform, lazily
type Lister interface {
	ListCompetitions(ctx context.Context) iter.Seq2[catalog.Competition, error]
}
