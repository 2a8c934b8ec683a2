// README: Webhook delivery worker; drains the Redis queue and POSTs to consoles.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// WorkerConfig tunes delivery behaviour.
type WorkerConfig struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// Worker delivers queued events to the configured authority webhook with
// retries and an HMAC-SHA256 signature header.
type Worker struct {
	redis      *redis.Client
	log        *logrus.Logger
	cfg        WorkerConfig
	httpClient *http.Client
}

func NewWorker(redisClient *redis.Client, log *logrus.Logger, cfg WorkerConfig) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Worker{
		redis:      redisClient,
		log:        log,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Start runs the delivery loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("starting webhook worker")
	go func() {
		for {
			select {
			case <-ctx.Done():
				w.log.Info("stopping webhook worker")
				return
			default:
				result, err := w.redis.BRPop(ctx, 0, queueKey).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						continue
					}
					w.log.WithError(err).Error("pop webhook event from queue")
					time.Sleep(w.cfg.Timeout)
					continue
				}
				// result[0] is the key, result[1] the payload.
				w.deliver(ctx, result[1])
			}
		}
	}()
}

func (w *Worker) deliver(ctx context.Context, payload string) {
	if w.cfg.URL == "" {
		w.log.Warn("webhook URL not configured, skipping delivery")
		return
	}

	delay := w.cfg.BaseDelay
	for i := 0; i < w.cfg.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewBufferString(payload))
		if err != nil {
			w.log.WithError(err).Error("build webhook request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if w.cfg.Secret != "" {
			req.Header.Set("X-Webhook-Signature", sign(payload, w.cfg.Secret))
		}

		resp, err := w.httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return
			}
			w.log.WithField("status", resp.StatusCode).Warn("webhook delivery rejected, retrying")
		} else {
			w.log.WithError(err).Warn("webhook delivery failed, retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	w.log.WithField("retries", w.cfg.MaxRetries).Error("webhook delivery abandoned")
}

func sign(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
