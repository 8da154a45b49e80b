package db

import (
	"fmt"

	"github.com/tuncanbit/paylink/pkg/config"
)

func GetDBDSN(config *config.DatabaseConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		config.User,
		config.Password,
		config.Host,
		config.Port,
		config.DBName,
		sslMode,
	)
}
