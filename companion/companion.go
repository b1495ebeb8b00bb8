// Package companion runs on the reader side of the mailbox: every committed
// vitals record is turned into a feature vector and scored by an inference
// function.
package companion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cgxeiji/pulsenode/mailbox"
)

// Features is the length of the feature vector.
const Features = 5

// Vector is the inference input: temperature, SpO2, heart rate, fatigue
// score and a constant 1.
type Vector [Features]float32

// FeaturesOf maps a record to its feature vector.
func FeaturesOf(rec mailbox.Record) Vector {
	return Vector{rec.TemperatureC, rec.SpO2Pct, rec.HeartRateBpm, rec.FatigueScore, 1}
}

// InferenceFunc scores one feature vector.
type InferenceFunc func(Vector) (float32, error)

// Consumer scores records as they are committed to the mailbox.
type Consumer struct {
	Reader *mailbox.Reader
	// Doorbell is rung by the writer after every commit. It may be nil when
	// the writer lives in another process, in which case Poll must be set.
	Doorbell <-chan struct{}
	// Poll, when positive, also checks the mailbox on this interval.
	Poll time.Duration
	Infer InferenceFunc
	// OnScore is called with every scored record. Optional.
	OnScore func(mailbox.Record, float32)
	Log     *zap.Logger
}

// Run consumes records until ctx is done and returns ctx.Err(). Inference
// failures are logged and do not stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("companion")

	var tick <-chan time.Time
	if c.Poll > 0 {
		t := time.NewTicker(c.Poll)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Doorbell:
		case <-tick:
		}
		c.consume(log)
	}
}

func (c *Consumer) consume(log *zap.Logger) {
	rec, ok := c.Reader.TryConsume()
	if !ok {
		return
	}

	score, err := c.Infer(FeaturesOf(rec))
	if err != nil {
		log.Warn("inference failed", zap.Uint32("seq", rec.Seq), zap.Error(err))
		return
	}

	log.Debug("record scored",
		zap.Uint32("seq", rec.Seq),
		zap.Float32("heart_rate", rec.HeartRateBpm),
		zap.Float32("spo2", rec.SpO2Pct),
		zap.Float32("temperature", rec.TemperatureC),
		zap.Float32("score", score),
	)
	if c.OnScore != nil {
		c.OnScore(rec, score)
	}
}
