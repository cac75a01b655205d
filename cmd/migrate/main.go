// Package main applies database migrations for the product inventory API.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/Dimi2435/product-inventory-api/pkg/bootstrap"
)

func main() {
	source := flag.String("source", "file://migrations", "migration source URL")
	database := flag.String("database", os.Getenv("PRODUCT_DATABASE_URL"), "database URL")
	flag.Parse()

	if *database == "" {
		log.Fatal("database URL is required: pass -database or set PRODUCT_DATABASE_URL")
	}

	if err := bootstrap.RunMigrations(*source, *database); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migrations applied successfully")
}
