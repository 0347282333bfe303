// Package history keeps an append-only log of launched forms in a JetStream
// stream. Only navigational selections are recorded: the form, the site and
// whether a participant was attached. Participant identifiers and form data
// never leave the wizard.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/bridgestowork/bridges-forms/internal/logger"
)

const (
	streamName    = "bridges_launches"
	subjectPrefix = "bridges.launch"
	retention     = 30 * 24 * time.Hour
)

// Launch is one recorded form launch.
type Launch struct {
	Seq         uint64    `json:"-"`
	FormID      string    `json:"form_id"`
	FormName    string    `json:"form_name"`
	Site        string    `json:"site,omitempty"`
	WithContact bool      `json:"with_contact"`
	At          time.Time `json:"at"`
}

// Log publishes and reads launch events.
type Log struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Open creates or updates the launch stream.
func Open(ctx context.Context, js jetstream.JetStream) (*Log, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   retention,
	})
	if err != nil {
		return nil, fmt.Errorf("opening launch stream: %w", err)
	}
	return &Log{js: js, stream: stream}, nil
}

// Record appends a launch event.
func (l *Log) Record(ctx context.Context, launch Launch) error {
	if launch.At.IsZero() {
		launch.At = time.Now()
	}

	data, err := json.Marshal(launch)
	if err != nil {
		return fmt.Errorf("marshaling launch: %w", err)
	}

	subject := subjectPrefix + "." + launch.FormID
	ack, err := l.js.Publish(ctx, subject, data)
	if err != nil {
		logger.Error("Failed to publish launch to %s: %v", subject, err)
		return fmt.Errorf("publishing launch: %w", err)
	}

	logger.Debug("Launch recorded: form=%s site=%s seq=%d", launch.FormID, launch.Site, ack.Sequence)
	return nil
}

// Recent returns up to n launches, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Launch, error) {
	info, err := l.stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading launch stream info: %w", err)
	}

	var out []Launch
	for seq := info.State.LastSeq; seq >= info.State.FirstSeq && seq > 0 && len(out) < n; seq-- {
		msg, err := l.stream.GetMsg(ctx, seq)
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading launch %d: %w", seq, err)
		}

		var launch Launch
		if err := json.Unmarshal(msg.Data, &launch); err != nil {
			logger.Warn("Skipping malformed launch event %d: %v", seq, err)
			continue
		}
		launch.Seq = seq
		out = append(out, launch)
	}

	return out, nil
}
