// Package caching contains a persistent cache of analysis reports.
//
// We key reports by analyzer.Digest, which covers the content of the
// trace members and the analysis options, so that re-running the
// analyzer on an unchanged trace does not repeat the analysis.
//
// On disk, we use a single bolt bucket. Each value is a zstd
// compressed JSON envelope containing the report schema, the digest,
// the creation time, and the report. We validate the envelope using
// fastjson before fully decoding the report and we treat entries
// with a different schema as misses.
package caching

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/klauspost/compress/zstd"
	"github.com/smartdiet/netanalyzer/internal/analyzer"
	"github.com/smartdiet/netanalyzer/internal/logcat"
	"github.com/valyala/fastjson"
)

const bucketName = "reports"

// ErrInvalidEntry indicates that a cache entry is not a valid envelope.
var ErrInvalidEntry = errors.New("caching: invalid entry")

// Cache is a persistent cache of reports. It is safe to use a Cache
// from multiple goroutines.
type Cache struct {
	db      *bolt.DB
	decoder *zstd.Decoder
	encoder *zstd.Encoder
	parsers fastjson.ParserPool
}

// Open opens (and possibly creates) the cache at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("caching: %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		dec.Close()
		db.Close()
		return nil, err
	}
	return &Cache{db: db, decoder: dec, encoder: enc}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	c.decoder.Close()
	c.encoder.Close()
	return c.db.Close()
}

// envelope is the JSON stored for each key.
type envelope struct {
	Schema  int                      `json:"schema"`
	Digest  string                   `json:"digest"`
	Created time.Time                `json:"created"`
	Report  *analyzer.ArchivalReport `json:"report"`
}

// Get returns the report cached under key. The boolean is false when
// there is no such report, when the entry is corrupt or when the
// entry was written using a different report schema.
func (c *Cache) Get(key string) (*analyzer.ArchivalReport, bool) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if value == nil {
			return nil
		}
		// value is only valid during the transaction
		data = append([]byte{}, value...)
		return nil
	})
	if err != nil || data == nil {
		logcat.Cachef("cache miss for %s", key)
		return nil, false
	}
	report, err := c.decode(key, data)
	if err != nil {
		logcat.Cachef("cache miss for %s: %s", key, err.Error())
		return nil, false
	}
	logcat.Cachef("cache hit for %s", key)
	return report, true
}

func (c *Cache) decode(key string, data []byte) (*analyzer.ArchivalReport, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, err
	}
	if _, err := c.validate(key, raw); err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env.Report, nil
}

// validate checks the envelope and returns its creation time.
func (c *Cache) validate(key string, raw []byte) (time.Time, error) {
	parser := c.parsers.Get()
	defer c.parsers.Put(parser)
	v, err := parser.ParseBytes(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidEntry, err.Error())
	}
	if schema := v.GetInt("schema"); schema != analyzer.ReportSchema {
		return time.Time{}, fmt.Errorf("%w: stale schema %d", ErrInvalidEntry, schema)
	}
	if digest := string(v.GetStringBytes("digest")); digest != key {
		return time.Time{}, fmt.Errorf("%w: digest mismatch", ErrInvalidEntry)
	}
	if v.Get("report") == nil || v.Get("report").Type() != fastjson.TypeObject {
		return time.Time{}, fmt.Errorf("%w: missing report", ErrInvalidEntry)
	}
	created, err := time.Parse(time.RFC3339Nano, string(v.GetStringBytes("created")))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidEntry, err.Error())
	}
	return created, nil
}

// Put stores report under key.
func (c *Cache) Put(key string, report *analyzer.ArchivalReport) error {
	raw, err := json.Marshal(&envelope{
		Schema:  analyzer.ReportSchema,
		Digest:  key,
		Created: time.Now().UTC(),
		Report:  report,
	})
	if err != nil {
		return err
	}
	data := c.encoder.EncodeAll(raw, nil)
	logcat.Cachef("writing %d bytes (%d uncompressed) for %s", len(data), len(raw), key)
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

// Len returns the number of entries.
func (c *Cache) Len() (count int) {
	_ = c.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	return
}

// Trim removes the entries older than maxAge along with the invalid
// ones and returns the number of removed entries.
func (c *Cache) Trim(maxAge time.Duration) (int, error) {
	deadline := time.Now().Add(-maxAge)
	var removed int
	err := c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			raw, err := c.decoder.DecodeAll(v, nil)
			if err == nil {
				var created time.Time
				created, err = c.validate(string(k), raw)
				if err == nil && created.After(deadline) {
					return nil
				}
			}
			stale = append(stale, append([]byte{}, k...))
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if removed > 0 {
		logcat.Cachef("trimmed %d entries", removed)
	}
	return removed, err
}
