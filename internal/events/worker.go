package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"depin-engine-backend/internal/model"
)

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of PushSender using the
// webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// pushMessage is the JSON body delivered to subscribers.
type pushMessage struct {
	Topic    string `json:"topic"`
	EntityID int64  `json:"entity_id"`
	Actor    string `json:"actor,omitempty"`
	Affected string `json:"affected,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

// WorkerPool manages a pool of workers delivering committed events to
// push subscribers of the matching topic.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  PushSender
}

// eventQueueSize bounds the backlog of undelivered event IDs. Push
// delivery is best-effort; the queue absorbs bursts, not outages.
const eventQueueSize = 1024

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, eventQueueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case eventID := <-wp.jobs:
			log.Printf("Worker %d processing event %d", id, eventID)
			wp.sendNotificationsForEvent(ctx, eventID)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an event for delivery. It never blocks: when the
// queue is full the event is dropped and logged, so stalled push
// endpoints cannot back-pressure the callers committing mutations.
// The event row itself is already durable at this point.
func (wp *WorkerPool) Dispatch(eventID int64) {
	select {
	case wp.jobs <- eventID:
	default:
		log.Printf("Event queue full, dropping push delivery of event %d", eventID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// sendNotificationsForEvent fetches the subscriptions on the event's
// topic and pushes the event to each of them.
func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, eventID int64) {
	var event model.Event
	if err := wp.db.WithContext(ctx).First(&event, eventID).Error; err != nil {
		log.Printf("Error fetching event %d: %v", eventID, err)
		return
	}

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_topic_mapping stm ON stm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("stm.event_topic_name = ?", event.Topic).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for topic %s: %v", event.Topic, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for event %d (%s)", len(subscriptions), eventID, event.Topic)

	message, err := json.Marshal(pushMessage{
		Topic:    event.Topic,
		EntityID: event.EntityID,
		Actor:    event.Actor,
		Affected: event.Affected,
		Payload:  event.Payload,
	})
	if err != nil {
		log.Printf("Error marshaling event %d: %v", eventID, err)
		return
	}

	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, message)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
