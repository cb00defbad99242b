package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Matching and allocation never touch the DB directly; only the models
// providers and the equivalence store do, so callers that work purely
// in memory can skip this entirely.
func ConnectDatabaseWithRetry() {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	databaseConfig := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?multiStatements=true&parseTime=true",
		dbUser,
		dbPassword,
		dbHost,
		dbPort,
		dbName,
	)

	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(mysql.Open(databaseConfig), &gorm.Config{
			Logger: logger.Default.LogMode(gormLogLevel()),
			NamingStrategy: schema.NamingStrategy{
				SingularTable: true,
			},
		})
		if err == nil {
			if err := conn.Use(otelgorm.NewPlugin()); err != nil {
				log.Printf("otelgorm plugin: %v", err)
			}
			db = conn
			log.Printf("database connected (attempt %d)", attempt)
			return
		}

		log.Printf("database connection failed (attempt %d): %v", attempt, err)
		if attempt >= 10 {
			log.Fatalf("giving up connecting to database after %d attempts", attempt)
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
}

func gormLogLevel() logger.LogLevel {
	if os.Getenv("DB_DEBUG") != "" {
		return logger.Info
	}
	return logger.Warn
}
