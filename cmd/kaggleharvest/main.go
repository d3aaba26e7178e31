// Command kaggleharvest crawls Kaggle competitions, kernels and notebooks
package main

import (
	"os"

	"kaggleharvest/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
