package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	dataDir = flag.String("data-dir", "/var/lib/brigade", "Brigade data directory")
	outPath = flag.String("out", "", "Backup destination (default: <data-dir>/brigade.db.backup)")
	check   = flag.Bool("check", false, "Verify the database instead of backing it up")
)

// Bucket names as written by pkg/storage. Index buckets hold raw
// key→id mappings; entity buckets hold one JSON document per record.
var entityBuckets = []string{
	"resellers",
	"tenants",
	"stores",
	"accounts",
	"bootstrap_tokens",
	"nodes",
	"revisions",
	"commands",
	"command_logs",
}

var indexBuckets = []string{
	"idx_reseller_code",
	"idx_tenant_slug",
	"idx_store_code",
	"idx_account_email",
	"idx_node_key",
	"idx_revision_number",
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Println("Brigade State Database Backup Tool")
	log.Println("==================================")

	dbPath := filepath.Join(*dataDir, "brigade.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", dbPath)
	}
	log.Printf("Database: %s", dbPath)

	// Read-only open works against a live control plane; bolt takes a
	// shared lock and the backup is a consistent snapshot.
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *check {
		if err := checkDatabase(db); err != nil {
			log.Fatalf("Check failed: %v", err)
		}
		return
	}

	dst := *outPath
	if dst == "" {
		dst = dbPath + ".backup"
	}
	if err := backupDatabase(db, dst); err != nil {
		log.Fatalf("Backup failed: %v", err)
	}
}

func backupDatabase(db *bolt.DB, dst string) error {
	log.Printf("Backing up to: %s", dst)

	var size int64
	err := db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return tx.CopyFile(dst, 0600)
	})
	if err != nil {
		return err
	}

	log.Printf("✓ Backup complete (%d bytes)", size)
	return nil
}

func checkDatabase(db *bolt.DB) error {
	var badRecords int

	err := db.View(func(tx *bolt.Tx) error {
		log.Println("\nEntity buckets:")
		for _, name := range entityBuckets {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				log.Printf("⚠ Missing bucket: %s", name)
				continue
			}

			var count int
			bucket.ForEach(func(k, v []byte) error {
				count++
				var doc map[string]interface{}
				if err := json.Unmarshal(v, &doc); err != nil {
					badRecords++
					log.Printf("⚠ Invalid JSON in %s key %s: %v", name, k, err)
				}
				return nil
			})
			log.Printf("  %-20s %d records", name, count)
		}

		log.Println("\nIndex buckets:")
		for _, name := range indexBuckets {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				log.Printf("⚠ Missing bucket: %s", name)
				continue
			}
			log.Printf("  %-20s %d entries", name, bucket.Stats().KeyN)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if badRecords > 0 {
		return fmt.Errorf("%d records failed JSON validation", badRecords)
	}
	log.Println("\n✓ Database check passed")
	return nil
}
