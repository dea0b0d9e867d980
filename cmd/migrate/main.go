package main

import (
	"fmt"
	"log"
	"os"

	"ai-answer-engine-be/internal/model"
	"ai-answer-engine-be/pkg/database"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	if err := migrate(db); err != nil {
		log.Fatalf("Error: Migration failed: %v", err)
	}

	log.Println("✅ Success: Database migration completed via GORM.")
}

func migrate(db *gorm.DB) error {
	// pgcrypto supplies gen_random_uuid for primary keys, vector the
	// embedding column type. Creation needs elevated privileges, so a
	// failure is only a warning; a managed database usually has both
	// installed already.
	for _, ext := range []string{"pgcrypto", "vector"} {
		if err := db.Exec(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s;", ext)).Error; err != nil {
			log.Printf("Warn: Could not create extension %s: %v. Continuing...", ext, err)
		}
	}

	log.Println("Migrating query_records...")
	if err := db.AutoMigrate(&model.QueryRecord{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return createVectorIndex(db)
}

// createVectorIndex adds the approximate-nearest-neighbor index that
// AutoMigrate cannot express. The operator class must stay cosine to
// match the `1 - (embedding <=> ?)` similarity the history repository
// queries with.
func createVectorIndex(db *gorm.DB) error {
	hnsw := `CREATE INDEX IF NOT EXISTS idx_query_records_embedding
	 ON query_records USING hnsw (embedding vector_cosine_ops);`

	err := db.Exec(hnsw).Error
	if err == nil {
		return nil
	}

	// hnsw needs pgvector >= 0.5; older installs still support ivfflat.
	log.Printf("Warn: hnsw index failed (%v), falling back to ivfflat", err)

	ivfflat := `CREATE INDEX IF NOT EXISTS idx_query_records_embedding
	 ON query_records USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);`

	if err := db.Exec(ivfflat).Error; err != nil {
		// The table works without the index, scans are just linear.
		log.Printf("Warn: Vector index not created: %v", err)
	}
	return nil
}
