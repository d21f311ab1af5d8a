package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey   = "notifications"
	failedKey  = "notifications:failed"
	maxTries   = 3
	popTimeout = 2 * time.Second

	scanTitle = "Ticket scanned"
)

type Job struct {
	OwnerID  int64     `json:"owner_id"`
	TicketID int64     `json:"ticket_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Tries    int       `json:"tries"`
	Created  time.Time `json:"created"`
}

// PushTokens resolves the device push token of a rider. An empty token means
// the rider has no registered device.
type PushTokens interface {
	PushToken(ctx context.Context, ownerID int64) (string, error)
}

type pushMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound"`
}

// Service queues scan notifications in Redis and delivers them to the push
// endpoint from a background worker.
type Service struct {
	redis      *redis.Client
	tokens     PushTokens
	endpoint   string
	http       *http.Client
	retryDelay time.Duration
}

func New(rdb *redis.Client, tokens PushTokens, endpoint string) *Service {
	return &Service{
		redis:      rdb,
		tokens:     tokens,
		endpoint:   endpoint,
		http:       &http.Client{Timeout: 10 * time.Second},
		retryDelay: 5 * time.Second,
	}
}

// Notify queues a check-out notification. It never talks to the push endpoint.
func (s *Service) Notify(ctx context.Context, ownerID, ticketID int64) error {
	job := Job{
		OwnerID:  ownerID,
		TicketID: ticketID,
		Title:    scanTitle,
		Body:     fmt.Sprintf("Ticket %d has been scanned", ticketID),
		Created:  time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal notification job: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Errorf("Failed to queue notification for rider %d: %v", ownerID, err)
		return err
	}

	metrics.RecordNotification("queued")
	logger.Debug("notification queued", "owner_id", ownerID, "ticket_id", ticketID)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Notification worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, popTimeout, queueKey).Result()
	if err != nil {
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad notification data: %v", err)
		return
	}

	job.Tries++
	if err := s.deliver(ctx, job); err != nil {
		logger.Errorf("Failed to notify rider %d (attempt %d): %v", job.OwnerID, job.Tries, err)

		if job.Tries < maxTries {
			time.Sleep(s.retryDelay)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, string(data))
			metrics.RecordNotification("retried")
		} else {
			s.saveFailed(job, err)
		}
		return
	}
}

func (s *Service) deliver(ctx context.Context, job Job) error {
	token, err := s.tokens.PushToken(ctx, job.OwnerID)
	if err != nil {
		return fmt.Errorf("lookup push token: %w", err)
	}
	if token == "" {
		metrics.RecordNotification("skipped")
		return nil
	}

	body, err := json.Marshal(pushMessage{
		To:    token,
		Title: job.Title,
		Body:  job.Body,
		Data:  map[string]any{"ticketId": job.TicketID},
		Sound: "default",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %s", resp.Status)
	}

	metrics.RecordNotification("sent")
	return nil
}

func (s *Service) saveFailed(job Job, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedKey, string(data))
	metrics.RecordNotification("failed")
	logger.Errorf("Notification for rider %d moved to failed queue", job.OwnerID)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	metrics.NotificationQueueLength.Set(float64(length))
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}
