// Package domain holds the ports of the kernel stage
package domain

import (
	"context"
	"iter"

	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/core/report"
)

// RunnerPort is what the CLI calls
type RunnerPort interface {
	Run(ctx context.Context, competitionsPath, outputDir, exclusionPath string) (*report.Report, error)
}

// Lister enumerates the kernels of one competition, lazily
type Lister interface {
	ListKernels(ctx context.Context, competitionID string) iter.Seq2[catalog.Kernel, error]
}
