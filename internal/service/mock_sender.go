// internal/service/mock_sender.go
package service

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog/log"
)

// MockSender simulates a messaging channel for local development: sends
// succeed with the configured rate and never leave the process.
type MockSender struct {
	SuccessRate float64
}

func NewMockSender() *MockSender {
	return &MockSender{SuccessRate: 0.9}
}

func (s *MockSender) Send(ctx context.Context, connectionID, phone, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rand.Float64() >= s.SuccessRate {
		return fmt.Errorf("mock sending failed")
	}
	log.Debug().
		Str("connectionID", connectionID).
		Str("phone", phone).
		Msg("mock message sent")
	return nil
}
