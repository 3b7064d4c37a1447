package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"

	"lendchain/services/mortgaged/journal"
)

const (
	maxIdempotencyKeyLength = 128
	maxFingerprintBody      = 1 << 20
)

// fingerprint binds a stored response to the exact request that produced it.
func fingerprint(method, path string, body []byte) string {
	h := blake3.New(32, nil)
	_, _ = io.WriteString(h, method)
	_, _ = h.Write([]byte{0})
	_, _ = io.WriteString(h, path)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Idempotency replays the stored response of a write request carrying an
// Idempotency-Key header already seen for the same caller. The key is
// reserved before the handler runs, so a duplicate arriving while the first
// request is in flight gets 409. Only responses below 500 are stored so
// transient failures may be retried.
func Idempotency(db *gorm.DB, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if db == nil || key == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLength {
				writeError(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long")
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "unreadable request body")
				return
			}
			if len(body) > maxFingerprintBody {
				writeError(w, http.StatusRequestEntityTooLarge, "bad_request", "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := fingerprint(r.Method, r.URL.Path, body)

			caller := ""
			if addr, ok := Caller(r.Context()); ok {
				caller = hex.EncodeToString(addr[:])
			}

			requestID := chimw.GetReqID(r.Context())
			if requestID == "" {
				requestID = uuid.NewString()
			}
			pending := journal.IdempotencyKey{
				Key:         key,
				Caller:      caller,
				RequestID:   requestID,
				Method:      r.Method,
				Path:        r.URL.Path,
				Fingerprint: sum,
				CreatedAt:   time.Now().UTC(),
			}
			res := db.WithContext(r.Context()).Clauses(clause.OnConflict{DoNothing: true}).Create(&pending)
			if res.Error != nil {
				logger.Error("idempotency reserve failed", slog.String("error", res.Error.Error()))
				writeError(w, http.StatusInternalServerError, "internal", "idempotency store unavailable")
				return
			}
			if res.RowsAffected == 0 {
				replay(w, db.WithContext(r.Context()), logger, key, caller, sum)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			// Settled outside the request context.
			store := db.WithContext(context.WithoutCancel(r.Context())).Model(&journal.IdempotencyKey{}).
				Where("key = ? AND caller = ?", key, caller)
			if recorder.status >= http.StatusInternalServerError {
				if err := store.Delete(&journal.IdempotencyKey{}).Error; err != nil {
					logger.Error("idempotency release failed", slog.String("error", err.Error()))
				}
				return
			}
			if err := store.Updates(map[string]any{
				"status":   recorder.status,
				"response": recorder.buf.String(),
			}).Error; err != nil {
				logger.Error("idempotency store failed", slog.String("error", err.Error()))
			}
		})
	}
}

// replay answers a request whose key is already reserved. A reservation
// without a status belongs to a request still in flight.
func replay(w http.ResponseWriter, db *gorm.DB, logger *slog.Logger, key, caller, sum string) {
	var record journal.IdempotencyKey
	if err := db.First(&record, "key = ? AND caller = ?", key, caller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusConflict, "idempotency_key_in_progress", "request with this idempotency key is still in progress")
			return
		}
		logger.Error("idempotency lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal", "idempotency store unavailable")
		return
	}
	if record.Fingerprint != sum {
		writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key used for a different request")
		return
	}
	if record.Status == 0 {
		writeError(w, http.StatusConflict, "idempotency_key_in_progress", "request with this idempotency key is still in progress")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write([]byte(record.Response))
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
