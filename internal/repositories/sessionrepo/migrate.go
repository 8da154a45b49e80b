package sessionrepo

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/tuncanbit/paylink/internal/infrastructure/database"
)

//go:embed sql/schema.sql
var schema string

// Migrate creates the payment_sessions table if it does not exist.
func Migrate(ctx context.Context, db *database.DBManager) error {
	if _, err := db.Db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply session schema: %w", err)
	}
	return nil
}
