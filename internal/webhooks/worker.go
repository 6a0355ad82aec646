package webhooks

import (
    "bytes"
    "context"
    "log"
    "net/http"
    "strconv"
    "sync"
    "time"

    "routecap/internal/config"
    "routecap/internal/metrics"
)

// Delivery is one queued webhook POST.
type Delivery struct {
    ID        string
    TenantID  string
    EventType string
    URL       string
    Secret    string
    Payload   []byte
    Attempts  int
    NextAt    time.Time
    LastCode  int
    LastError string
}

// Worker drains an in-process delivery queue, retrying failures with
// exponential backoff until MaxAttempts is reached.
type Worker struct {
    HTTP        *http.Client
    MaxAttempts int
    QueueSize   int
    Interval    time.Duration

    mu      sync.Mutex
    pending []Delivery
    failed  []Delivery
    now     func() time.Time
    stop    chan struct{}
    done    chan struct{}
}

func NewWorker(c config.WebhookConfig) *Worker {
    w := &Worker{
        HTTP:        &http.Client{Timeout: c.Timeout},
        MaxAttempts: c.MaxAttempts,
        QueueSize:   c.QueueSize,
        Interval:    time.Second,
        now:         time.Now,
    }
    if w.MaxAttempts <= 0 { w.MaxAttempts = 10 }
    if w.QueueSize <= 0 { w.QueueSize = 256 }
    if c.Timeout <= 0 { w.HTTP.Timeout = 5 * time.Second }
    return w
}

// Enqueue schedules d for immediate delivery. It reports false when the queue is full.
func (w *Worker) Enqueue(d Delivery) bool {
    w.mu.Lock()
    defer w.mu.Unlock()
    if len(w.pending) >= w.QueueSize {
        metrics.WebhookDeliveries.WithLabelValues(d.EventType, "dropped").Inc()
        log.Printf("webhook dropped tenant=%s event=%s id=%s reason=queue_full", d.TenantID, d.EventType, d.ID)
        return false
    }
    d.NextAt = w.now()
    w.pending = append(w.pending, d)
    return true
}

// Pending returns the number of queued deliveries.
func (w *Worker) Pending() int {
    w.mu.Lock()
    defer w.mu.Unlock()
    return len(w.pending)
}

// Failed returns deliveries that exhausted their attempts.
func (w *Worker) Failed() []Delivery {
    w.mu.Lock()
    defer w.mu.Unlock()
    return append([]Delivery(nil), w.failed...)
}

func (w *Worker) Start() {
    w.stop = make(chan struct{})
    w.done = make(chan struct{})
    go func() {
        defer close(w.done)
        ticker := time.NewTicker(w.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-w.stop:
                return
            case <-ticker.C:
                w.processOnce(context.Background())
            }
        }
    }()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (w *Worker) Stop() {
    if w.stop == nil { return }
    close(w.stop)
    <-w.done
    w.stop = nil
}

func (w *Worker) due() []Delivery {
    w.mu.Lock()
    defer w.mu.Unlock()
    now := w.now()
    var due, rest []Delivery
    for _, d := range w.pending {
        if d.NextAt.After(now) { rest = append(rest, d) } else { due = append(due, d) }
    }
    w.pending = rest
    return due
}

func (w *Worker) processOnce(ctx context.Context) {
    items := w.due()
    for _, it := range items {
        code, err := w.send(ctx, it)
        it.Attempts++
        it.LastCode = code
        it.LastError = ""
        if err != nil { it.LastError = err.Error() }
        success := err == nil && code >= 200 && code < 300
        w.mu.Lock()
        switch {
        case success:
        case it.Attempts >= w.MaxAttempts:
            w.failed = append(w.failed, it)
            log.Printf("webhook failed tenant=%s event=%s id=%s attempts=%d code=%d err=%q", it.TenantID, it.EventType, it.ID, it.Attempts, code, it.LastError)
        default:
            it.NextAt = w.now().Add(nextBackoff(it.Attempts - 1))
            w.pending = append(w.pending, it)
        }
        w.mu.Unlock()
    }
}

func (w *Worker) send(ctx context.Context, it Delivery) (int, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil { return 0, err }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set(HeaderEventType, it.EventType)
    req.Header.Set(HeaderDelivery, it.ID)
    if it.Secret != "" { req.Header.Set(HeaderSignature, Sign(it.Secret, it.Payload)) }
    start := time.Now()
    resp, err := w.HTTP.Do(req)
    latency := float64(time.Since(start).Milliseconds())
    code := 0
    if resp != nil {
        code = resp.StatusCode
        _ = resp.Body.Close()
    }
    status := "error"
    if err == nil { status = strconv.Itoa(code) }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(latency)
    return code, err
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
