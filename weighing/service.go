// Package weighing confirms the current scale reading against a goods
// receipt. Only a settled reading may be saved.
package weighing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pesaje-scale-link/link"
	"pesaje-scale-link/types"
	"pesaje-scale-link/wedge"
)

var (
	ErrUnstableWeight    = errors.New("weight is not stable")
	ErrNoReading         = errors.New("no weight reading yet")
	ErrInvalidRequest    = errors.New("invalid save request")
	ErrDuplicateSequence = errors.New("duplicate sequence number")
)

// Scale is the part of the link manager the save operation reads.
type Scale interface {
	State() types.ConnectionState
	Reading() (types.DecodedReading, bool)
	Tolerance() float64
}

type SaveRequest struct {
	ReceiptID string `json:"receiptId"`
	// Weight, when given, must agree with the current stable reading.
	Weight            *float64 `json:"weight"`
	JabaWeight        float64  `json:"jabaWeight"`
	ShrinkageDiscount float64  `json:"shrinkageDiscount"`
	OperatorID        string   `json:"operatorId"`
	Note              string   `json:"note"`
}

type Service struct {
	scale  Scale
	store  Store
	output wedge.Output
	log    zerolog.Logger
	now    func() time.Time

	// one save at a time keeps sequence numbers dense
	mu sync.Mutex
}

func NewService(scale Scale, store Store, output wedge.Output, logger zerolog.Logger) *Service {
	if output == nil {
		output = wedge.Nop{}
	}
	return &Service{scale: scale, store: store, output: output, log: logger, now: time.Now}
}

func (s *Service) Save(ctx context.Context, req SaveRequest) (types.WeighingRecord, error) {
	if err := validate(req); err != nil {
		return types.WeighingRecord{}, err
	}

	if s.scale.State().State != types.Connected {
		return types.WeighingRecord{}, link.ErrNotConnected
	}
	reading, ok := s.scale.Reading()
	if !ok || reading.Weight == nil {
		return types.WeighingRecord{}, ErrNoReading
	}
	if !reading.IsStable {
		return types.WeighingRecord{}, ErrUnstableWeight
	}

	weight := *reading.Weight
	if req.Weight != nil {
		if math.Abs(*req.Weight-weight) > s.scale.Tolerance()+1e-9 {
			return types.WeighingRecord{}, fmt.Errorf("%w: requested %.3f kg, scale shows %.3f kg", ErrUnstableWeight, *req.Weight, weight)
		}
		weight = *req.Weight
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.store.NextSequence(ctx, req.ReceiptID)
	if err != nil {
		return types.WeighingRecord{}, fmt.Errorf("next sequence: %w", err)
	}
	rec := types.WeighingRecord{
		ReceiptID:         req.ReceiptID,
		SequenceNumber:    seq,
		Weight:            weight,
		JabaWeight:        req.JabaWeight,
		ShrinkageDiscount: req.ShrinkageDiscount,
		OperatorID:        req.OperatorID,
		Timestamp:         s.now(),
		Note:              strings.TrimSpace(req.Note),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return types.WeighingRecord{}, fmt.Errorf("save weighing: %w", err)
	}

	s.log.Info().
		Str("receipt", rec.ReceiptID).
		Int("seq", rec.SequenceNumber).
		Float64("weight", rec.Weight).
		Str("operator", rec.OperatorID).
		Msg("weighing saved")

	// the record is stored; a desktop output failure is only reported
	if err := s.output.Emit(fmt.Sprintf("%.2f", rec.Weight)); err != nil {
		s.log.Warn().Err(err).Msg("wedge output failed")
	}
	return rec, nil
}

func validate(req SaveRequest) error {
	var problems []string
	if strings.TrimSpace(req.ReceiptID) == "" {
		problems = append(problems, "receiptId is required")
	}
	if strings.TrimSpace(req.OperatorID) == "" {
		problems = append(problems, "operatorId is required")
	}
	if req.JabaWeight < 0 {
		problems = append(problems, "jabaWeight must not be negative")
	}
	if req.ShrinkageDiscount < 0 {
		problems = append(problems, "shrinkageDiscount must not be negative")
	}
	if req.Weight != nil && *req.Weight < 0 {
		problems = append(problems, "weight must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}
