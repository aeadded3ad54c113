// Command demo_linearhash runs a scripted exercise of the linear hash
// index against a scratch directory: initialise, insert past the
// point a bucket overflows, split, query every key back, range-scan,
// and destroy.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/zhukovaskychina/lhindex/logger"
	"github.com/zhukovaskychina/lhindex/server/innodb/linearhash"
)

func main() {
	dataDir := flag.String("data-dir", "./demo_data", "scratch directory for the main file and overflow files")
	keyCount := flag.Int("keys", 20, "number of integer keys to insert")
	recordsPerBucket := flag.Int("records-per-bucket", 4, "primary page capacity per bucket")
	initialSize := flag.Uint("initial-size", 4, "initial bucket count (power of two >= 2)")
	flag.Parse()

	logger.InitLogger(logger.LogConfig{LogLevel: "info"})

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Errorf("demo: create data dir: %v", err)
		os.Exit(1)
	}
	defer os.RemoveAll(*dataDir)

	idx, err := linearhash.Initialise(linearhash.Config{
		ID:               1,
		KeyType:          linearhash.KeyInt,
		KeySize:          4,
		ValueSize:        4,
		InitialSize:      uint32(*initialSize),
		RecordsPerBucket: *recordsPerBucket,
		Dir:              *dataDir,
	})
	if err != nil {
		logger.Errorf("demo: initialise: %v", err)
		os.Exit(1)
	}
	defer idx.Close()

	logger.Infof("demo: initialised map with %d buckets", *initialSize)

	for i := 0; i < *keyCount; i++ {
		k := keyBytes(uint32(i))
		v := keyBytes(uint32(i * 10))
		if err := idx.Insert(k, v); err != nil {
			logger.Errorf("demo: insert %d: %v", i, err)
			os.Exit(1)
		}
		if idx.Stats().LastInsertUsedOverflow {
			logger.Infof("demo: key %d spilled into overflow, splitting", i)
			if err := idx.Split(); err != nil {
				logger.Errorf("demo: split: %v", err)
				os.Exit(1)
			}
		}
	}

	stats := idx.Stats()
	logger.Infof("demo: after inserts: buckets=%d level=%d p=%d records=%d",
		stats.Buckets, stats.Level, stats.SplitPointer, stats.Records)

	out := make([]byte, 4)
	missing := 0
	for i := 0; i < *keyCount; i++ {
		if err := idx.Query(keyBytes(uint32(i)), out); err != nil {
			missing++
			continue
		}
		if got := binary.LittleEndian.Uint32(out); got != uint32(i*10) {
			logger.Errorf("demo: key %d returned wrong value %d", i, got)
		}
	}
	fmt.Printf("queried back %d/%d keys (%d missing)\n", *keyCount-missing, *keyCount, missing)

	lo, hi := keyBytes(uint32(*keyCount/4)), keyBytes(uint32(3*(*keyCount)/4))
	c, err := idx.Find(linearhash.Range{Low: lo, High: hi})
	if err != nil {
		logger.Errorf("demo: range find: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	rangeCount := 0
	key, value := make([]byte, 4), make([]byte, 4)
	for c.Next(key, value) == nil {
		rangeCount++
	}
	fmt.Printf("range scan returned %d keys\n", rangeCount)

	if err := idx.Destroy(); err != nil {
		logger.Errorf("demo: destroy: %v", err)
		os.Exit(1)
	}
	logger.Infof("demo: destroyed map")
}

func keyBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
