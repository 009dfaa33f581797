// backend/src/parsers/parser.go
package parsers

import (
	"io"

	"github.com/username/fincoach/backend/src/models"
)

// StatementParser converts an exported bank statement into transactions.
// Implementations live in per-format subpackages.
type StatementParser interface {
	Parse(file io.Reader) ([]models.Transaction, error)
}
