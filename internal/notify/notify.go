// Package notify publishes appointment lifecycle events over Redis pub/sub.
// Delivery is best effort; subscribers own retries and fan-out.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "appointments.events"

const (
	EventBooked            = "appointment.booked"
	EventCheckedIn         = "appointment.checked_in"
	EventConsultationStart = "appointment.consultation_started"
	EventExtended          = "appointment.extended"
	EventCancelled         = "appointment.cancelled"
	EventRescheduled       = "appointment.rescheduled"
	EventCompleted         = "appointment.completed"
	EventNoShow            = "appointment.no_show"
	EventPaymentRecorded   = "appointment.payment_recorded"
)

type Event struct {
	Type              string    `json:"type"`
	AppointmentID     uuid.UUID `json:"appointment_id"`
	AppointmentNumber string    `json:"appointment_number"`
	PatientID         uuid.UUID `json:"patient_id"`
	DoctorID          uuid.UUID `json:"doctor_id"`
	Status            string    `json:"status"`
	Date              string    `json:"appointment_date"`
	StartTime         string    `json:"start_time"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
