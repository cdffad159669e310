package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/propsproject/props-protocol-sub000/observability"
)

// IdempotencyHeader carries the client chosen replay key.
const IdempotencyHeader = "Idempotency-Key"

var idempotencyBucket = []byte("idempotency")

type storedResponse struct {
	RequestID string `json:"requestId"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Body      []byte `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}

// IdempotencyStore persists the first response produced for each key so a
// retried write is answered without running twice.
type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// OpenIdempotencyStore opens or creates the bolt file at path.
func OpenIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(idempotencyBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now, inflight: make(map[string]struct{})}, nil
}

func (s *IdempotencyStore) Close() error { return s.db.Close() }

func (s *IdempotencyStore) lookup(key string) (*storedResponse, error) {
	var out *storedResponse
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(idempotencyBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var rec storedResponse
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if s.now().Sub(time.Unix(rec.CreatedAt, 0)) > s.ttl {
			return nil
		}
		out = &rec
		return nil
	})
	return out, err
}

func (s *IdempotencyStore) save(key string, rec *storedResponse) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(idempotencyBucket).Put([]byte(key), raw)
	})
}

// Prune drops every record older than the TTL and returns how many went.
func (s *IdempotencyStore) Prune() (int, error) {
	cutoff := s.now().Add(-s.ttl).Unix()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(idempotencyBucket)
		var stale [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var rec storedResponse
			if err := json.Unmarshal(v, &rec); err != nil || rec.CreatedAt < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
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
	return removed, err
}

func (s *IdempotencyStore) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *IdempotencyStore) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// Middleware replays stored responses for repeated keys. Keys are scoped to
// the authenticated caller. Server errors are not remembered.
func (s *IdempotencyStore) Middleware(metrics *observability.StakingMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + " " + r.URL.Path + " " + header
			if caller, ok := callerFrom(r); ok {
				key = caller.Hex() + " " + key
			}
			if !s.acquire(key) {
				metrics.RecordThrottle("duplicate_inflight")
				writeFailure(w, http.StatusConflict, "DuplicateRequest", "a request with this idempotency key is in progress")
				return
			}
			defer s.release(key)

			rec, err := s.lookup(key)
			if err != nil {
				writeFailure(w, http.StatusInternalServerError, "Internal", "idempotency store unavailable")
				return
			}
			if rec != nil {
				metrics.RecordThrottle("duplicate")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Request-ID", rec.RequestID)
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(rec.Status)
				_, _ = w.Write(rec.Body)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			requestID := uuid.NewString()
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(recorder, r)
			if recorder.status >= http.StatusInternalServerError {
				return
			}
			_ = s.save(key, &storedResponse{
				RequestID: requestID,
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    recorder.status,
				Body:      recorder.buf.Bytes(),
				CreatedAt: s.now().Unix(),
			})
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
