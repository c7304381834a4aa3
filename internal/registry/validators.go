package registry

import (
	"fmt"
	"strings"
)

func init() {
	RegisterValidator(sqliteValidator{})
	RegisterValidator(mysqlValidator{})
}

type sqliteValidator struct{}

func (sqliteValidator) Type() string { return EngineSQLite }

func (sqliteValidator) Validate(config *InternalConfig) error {
	if config.Engine.Location == "" {
		return fmt.Errorf("engine.location is required")
	}
	if strings.ContainsRune(config.Engine.Location, 0) {
		return fmt.Errorf("engine.location must not contain NUL bytes")
	}
	return nil
}

type mysqlValidator struct{}

func (mysqlValidator) Type() string { return EngineMySQL }

func (mysqlValidator) Validate(config *InternalConfig) error {
	mysql := config.Engine.MySQL
	if mysql.Host == "" {
		return fmt.Errorf("engine.mysql.host is required")
	}
	if mysql.Port <= 0 || mysql.Port > 65535 {
		return fmt.Errorf("engine.mysql.port must be between 1 and 65535")
	}
	if mysql.Database == "" {
		return fmt.Errorf("engine.mysql.database is required")
	}
	if mysql.Username == "" {
		return fmt.Errorf("engine.mysql.username is required")
	}
	if mysql.MaxOpenConns < 0 {
		return fmt.Errorf("engine.mysql.max_open_conns must be non-negative")
	}
	return nil
}
