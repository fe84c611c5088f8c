package scheduling

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const BookedEventChannel = "scheduling.appointment_booked"

// RedisPublisher publishes booked events on a redis channel after the
// booking transaction commits. Publish failures are logged, never surfaced:
// the booking already happened.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisPublisher(rdb *redis.Client, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: BookedEventChannel, log: log}
}

func (p *RedisPublisher) PublishBooked(ctx context.Context, ev AppointmentBooked) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal booked event")
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Error().Err(err).
			Str("channel", p.channel).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("publish booked event")
	}
}

var _ EventPublisher = (*RedisPublisher)(nil)
