package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm-backend/models"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// Idempotency processes Idempotency-Key for mutating HTTP methods.
// The first completed response (status < 500) for a key is stored and replayed
// for identical retries; a key reused with a different request is rejected.
func Idempotency(db *gorm.DB, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		subject, _ := c.Locals(SubjectLocal).(string)
		path := c.OriginalURL() // includes query string
		reqHash := requestHash(method, path, c.Body(), subject)

		// ---- Phase 1: read or create the "pending" record
		var (
			existing models.IdempotencyKey
			created  bool
		)
		err := db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			err := tx.Where("key = ?", key).Take(&existing).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			rec := models.IdempotencyKey{
				Key:         key,
				RequestHash: reqHash,
				Method:      method,
				Path:        path,
				Subject:     subject,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
			existing = rec
			created = true
			return nil
		})
		if err != nil {
			// Could be a unique race with a concurrent first request: read again.
			if rerr := db.WithContext(c.UserContext()).Where("key = ?", key).Take(&existing).Error; rerr != nil {
				log.Error().Err(err).Str("key", key).Msg("idempotency lookup failed")
				return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
			}
		}

		if existing.RequestHash != reqHash {
			return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
		}
		if existing.Completed() {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(existing.ResponseStatus).Send(existing.ResponseBody)
		}
		if !created {
			return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is still in progress")
		}

		// ---- Phase 2: run the handler once, then store or release the key
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			// Let the client retry with the same key.
			if err := db.WithContext(c.UserContext()).Where("key = ?", key).Delete(&models.IdempotencyKey{}).Error; err != nil {
				log.Warn().Err(err).Str("key", key).Msg("idempotency release failed")
			}
			return nil
		}

		resp := c.Response().Body()
		blob := make([]byte, len(resp))
		copy(blob, resp)
		now := time.Now().UTC()
		if err := db.WithContext(c.UserContext()).
			Model(&models.IdempotencyKey{}).
			Where("key = ?", key).
			Updates(map[string]any{
				"response_status": status,
				"response_body":   datatypes.JSON(blob),
				"completed_at":    &now,
			}).Error; err != nil {
			// best-effort: don't break the successful response
			log.Warn().Err(err).Str("key", key).Msg("idempotency store failed")
		}
		return nil
	}
}

// requestHash is the sha256 of method|path|body|subject.
func requestHash(method, path string, body []byte, subject string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	h.Write([]byte{'\n'})
	h.Write([]byte(subject))
	return hex.EncodeToString(h.Sum(nil))
}
