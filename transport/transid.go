package transport

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	transIDBucketName = "trans_id"
	transIDKey        = "last"

	// transIDWrapAt es el umbral a partir del cual el contador vuelve a 100.
	transIDWrapAt  int32 = 2147483638
	transIDRestart int32 = 100
)

// TransactionIDStore es un contador persistente de TRANS_ID para órdenes.
//
// Sobrevive reinicios del proceso: cada Next se confirma en bbolt antes de
// retornar. El primer valor se siembra con la hora local (ddHHmmss).
type TransactionIDStore struct {
	mu  sync.Mutex
	db  *bolt.DB
	now func() time.Time
}

// OpenTransactionIDStore abre (o crea) el store en path.
func OpenTransactionIDStore(path string) (*TransactionIDStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir trans id path: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open trans id store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(transIDBucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &TransactionIDStore{db: db, now: time.Now}, nil
}

// OpenTransactionIDStore abre el store de TRANS_ID en TransIDPath.
func (c *Config) OpenTransactionIDStore() (*TransactionIDStore, error) {
	if c.TransIDPath == "" {
		return nil, fmt.Errorf("trans id path not configured")
	}
	return OpenTransactionIDStore(c.TransIDPath)
}

// Next retorna el siguiente TRANS_ID. Siempre positivo; al llegar a
// 2147483638 reinicia en 101.
func (s *TransactionIDStore) Next() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next int32
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(transIDBucketName))

		var last int32
		if data := b.Get([]byte(transIDKey)); len(data) == 4 {
			last = int32(binary.LittleEndian.Uint32(data))
		}

		switch {
		case last <= 0:
			seed, err := strconv.ParseInt(s.now().Format("02150405"), 10, 32)
			if err != nil {
				return err
			}
			next = int32(seed)
		case last >= transIDWrapAt:
			next = transIDRestart + 1
		default:
			next = last + 1
		}

		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(next))
		return b.Put([]byte(transIDKey), buf)
	})
	if err != nil {
		return 0, fmt.Errorf("next trans id: %w", err)
	}
	return next, nil
}

// NextTransactionID retorna el siguiente TRANS_ID para órdenes. El store se
// abre en Config.TransIDPath con el primer uso y se cierra con el transporte.
func (c *core) NextTransactionID() (int32, error) {
	c.transIDMu.Lock()
	if c.transIDsClosed {
		c.transIDMu.Unlock()
		return 0, fmt.Errorf("trans id store closed")
	}
	if c.transIDs == nil {
		store, err := c.cfg.OpenTransactionIDStore()
		if err != nil {
			c.transIDMu.Unlock()
			return 0, err
		}
		c.transIDs = store
	}
	store := c.transIDs
	c.transIDMu.Unlock()
	return store.Next()
}

func (c *core) closeTransactionIDs() error {
	c.transIDMu.Lock()
	defer c.transIDMu.Unlock()
	err := c.transIDs.Close()
	c.transIDs = nil
	c.transIDsClosed = true
	return err
}

// Close cierra el store.
func (s *TransactionIDStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
