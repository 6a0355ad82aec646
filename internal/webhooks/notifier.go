// Package webhooks delivers signed tenant notifications.
package webhooks

import (
    "context"
    "encoding/json"
    "log"
    "time"

    "github.com/google/uuid"

    "routecap/internal/model"
)

const (
    EventBatchCompleted = "batch.completed"
    EventCapacityAlerts = "capacity.alerts"
)

// SettingsSource resolves where a tenant wants its notifications sent.
type SettingsSource interface {
    GetTenantSettings(ctx context.Context, tenantID string) (model.TenantSettings, error)
}

// Event is the JSON envelope posted to tenant endpoints.
type Event struct {
    ID       string `json:"id"`
    Type     string `json:"type"`
    TenantID string `json:"tenantId"`
    TS       string `json:"ts"`
    Data     any    `json:"data"`
}

type Notifier struct {
    Settings SettingsSource
    Worker   *Worker
}

func NewNotifier(s SettingsSource, w *Worker) *Notifier {
    return &Notifier{Settings: s, Worker: w}
}

// Emit queues eventType for the tenant's webhook endpoint. Tenants without
// a configured URL are skipped. It returns the event id, or "" when nothing
// was queued.
func (n *Notifier) Emit(ctx context.Context, tenantID, eventType string, data any) string {
    if n == nil || n.Worker == nil { return "" }
    s, err := n.Settings.GetTenantSettings(ctx, tenantID)
    if err != nil {
        log.Printf("webhook settings tenant=%s err=%v", tenantID, err)
        return ""
    }
    if s.WebhookURL == "" { return "" }
    ev := Event{
        ID:       "evt_" + uuid.NewString(),
        Type:     eventType,
        TenantID: tenantID,
        TS:       time.Now().UTC().Format(time.RFC3339),
        Data:     data,
    }
    body, err := json.Marshal(ev)
    if err != nil {
        log.Printf("webhook marshal tenant=%s event=%s err=%v", tenantID, eventType, err)
        return ""
    }
    ok := n.Worker.Enqueue(Delivery{
        ID:        ev.ID,
        TenantID:  tenantID,
        EventType: eventType,
        URL:       s.WebhookURL,
        Secret:    s.WebhookSecret,
        Payload:   body,
    })
    if !ok { return "" }
    return ev.ID
}
