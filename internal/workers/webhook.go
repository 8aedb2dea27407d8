package workers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/jobqueue"
)

// httpbinEcho is the simulated per-country endpoint used when no real
// provider base URL is configured, matching the original's debug-mode
// fallback to an echo service for local testing.
const httpbinEcho = "https://httpbin.org/post"

// WebhookWorker consumes the notifications queue, signing and POSTing an
// outgoing event to the loan's country provider (spec §4.H). Go's
// encoding/json already emits map keys in sorted order, giving the
// stable serialization the original achieved with json.dumps(sort_keys=True).
type WebhookWorker struct {
	base      *BaseWorker
	client    *http.Client
	secret    string
	endpoints map[string]string // country code -> base URL, empty falls back to httpbinEcho
}

// NewWebhookWorker builds a WebhookWorker polling every second, per spec
// §4.H. endpoints maps country code to a provider base URL; a missing
// entry uses the simulated echo endpoint.
func NewWebhookWorker(workerID, secret string, endpoints map[string]string, jobs *jobqueue.Store, log *logrus.Logger) *WebhookWorker {
	w := &WebhookWorker{
		client:    &http.Client{Timeout: 30 * time.Second},
		secret:    secret,
		endpoints: endpoints,
	}
	w.base = &BaseWorker{
		QueueName:    "notifications",
		WorkerID:     workerID,
		PollInterval: time.Second,
		Jobs:         jobs,
		Processor:    ProcessorFunc(w.process),
		Log:          log.WithFields(logrus.Fields{"queue": "notifications", "worker_id": workerID}),
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *WebhookWorker) Run(ctx context.Context) { w.base.Run(ctx) }

func (w *WebhookWorker) endpoint(countryCode string) string {
	if base, ok := w.endpoints[countryCode]; ok && base != "" {
		return base + "/webhooks/loan-update"
	}
	return httpbinEcho
}

func (w *WebhookWorker) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (w *WebhookWorker) process(ctx context.Context, job *jobqueue.Job) (map[string]interface{}, error) {
	loanID, _ := job.Payload["loan_id"].(string)
	notificationType, _ := job.Payload["notification_type"].(string)
	countryCode, _ := job.Payload["country_code"].(string)
	if loanID == "" || notificationType == "" {
		return nil, fmt.Errorf("webhook worker: loan_id and notification_type are required")
	}
	if countryCode == "" {
		countryCode = "ES"
	}

	data := map[string]interface{}{}
	for k, v := range job.Payload {
		if k == "loan_id" || k == "notification_type" || k == "country_code" {
			continue
		}
		data[k] = v
	}

	body := map[string]interface{}{
		"event_type":     notificationType,
		"loan_reference": loanID,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"data":           data,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("webhook worker: marshal payload: %w", err)
	}
	signature := w.sign(payload)
	endpoint := w.endpoint(countryCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("webhook worker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Source", "loan-system")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook worker: post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !success {
		return nil, fmt.Errorf("webhook worker: %s returned status %d", endpoint, resp.StatusCode)
	}

	return map[string]interface{}{
		"loan_id":            loanID,
		"notification_type":  notificationType,
		"endpoint":           endpoint,
		"status_code":        resp.StatusCode,
		"success":            success,
	}, nil
}
