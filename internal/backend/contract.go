//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package backend

import (
	"context"
	"iter"
)

// Runner executes external programs inside a workspace directory. command
// holds the program name followed by its arguments.
type Runner interface {
	Run(ctx context.Context, dir string, command []string) ([]byte, error)
	Stream(ctx context.Context, dir string, command []string) iter.Seq2[string, error]
}
