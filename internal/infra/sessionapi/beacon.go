package sessionapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const defaultMaxInFlight = 64

// BeaconSender posts small payloads without waiting for the answer.
// It implements app.Beacon.
type BeaconSender struct {
	client  *http.Client
	token   string
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	log     hclog.Logger
}

// NewBeaconSender allows at most maxInFlight deliveries at once; Send refuses
// anything beyond that.
func NewBeaconSender(token string, timeout time.Duration, maxInFlight int, logger hclog.Logger) *BeaconSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &BeaconSender{
		client:  &http.Client{Timeout: timeout},
		token:   token,
		timeout: timeout,
		slots:   make(chan struct{}, maxInFlight),
		log:     logger,
	}
}

// Send queues a POST of payload to url and returns at once. It returns false
// when no delivery slot is free.
func (b *BeaconSender) Send(url string, payload []byte) bool {
	select {
	case b.slots <- struct{}{}:
	default:
		return false
	}

	body := append([]byte(nil), payload...)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.slots }()
		b.deliver(url, body)
	}()
	return true
}

// Wait blocks until queued deliveries finish or ctx is done.
func (b *BeaconSender) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *BeaconSender) deliver(url string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		b.log.Warn("build beacon request", "url", url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Warn("beacon delivery failed", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		b.log.Warn("beacon rejected", "url", url, "status", resp.StatusCode)
	}
}
