package weighing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pesaje-scale-link/link"
	"pesaje-scale-link/types"
)

type fakeScale struct {
	state   types.ScaleState
	reading *types.DecodedReading
}

func (f *fakeScale) State() types.ConnectionState {
	return types.ConnectionState{State: f.state}
}

func (f *fakeScale) Reading() (types.DecodedReading, bool) {
	if f.reading == nil {
		return types.DecodedReading{}, false
	}
	return *f.reading, true
}

func (f *fakeScale) Tolerance() float64 { return 0.02 }

type recordingOutput struct {
	texts []string
	err   error
}

func (r *recordingOutput) Emit(text string) error {
	r.texts = append(r.texts, text)
	return r.err
}

func stableScale(w float64) *fakeScale {
	return &fakeScale{
		state:   types.Connected,
		reading: &types.DecodedReading{Weight: &w, IsStable: true},
	}
}

func newService(scale Scale, store Store, out *recordingOutput) *Service {
	s := NewService(scale, store, out, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) }
	return s
}

func TestSaveAssignsSequenceNumbers(t *testing.T) {
	store := NewMemoryStore()
	out := &recordingOutput{}
	s := newService(stableScale(12.5), store, out)

	req := SaveRequest{ReceiptID: "ALB-0042", OperatorID: "op-7", JabaWeight: 1.2, ShrinkageDiscount: 0.3, Note: " first crate "}
	rec, err := s.Save(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.WeighingRecord{
		ReceiptID:         "ALB-0042",
		SequenceNumber:    1,
		Weight:            12.5,
		JabaWeight:        1.2,
		ShrinkageDiscount: 0.3,
		OperatorID:        "op-7",
		Timestamp:         time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
		Note:              "first crate",
	}, rec)

	rec, err = s.Save(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.SequenceNumber)

	rec, err = s.Save(context.Background(), SaveRequest{ReceiptID: "ALB-0043", OperatorID: "op-7"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.SequenceNumber)

	assert.Len(t, store.Records(), 3)
	assert.Equal(t, []string{"12.50", "12.50", "12.50"}, out.texts)
}

func TestSaveRejectsUnstableWeight(t *testing.T) {
	scale := stableScale(8)
	scale.reading.IsStable = false
	store := NewMemoryStore()

	_, err := newService(scale, store, &recordingOutput{}).Save(context.Background(), SaveRequest{ReceiptID: "A", OperatorID: "op"})
	assert.ErrorIs(t, err, ErrUnstableWeight)
	assert.Empty(t, store.Records())
}

func TestSaveRequiresConnection(t *testing.T) {
	scale := stableScale(8)
	scale.state = types.Disconnected

	_, err := newService(scale, NewMemoryStore(), &recordingOutput{}).Save(context.Background(), SaveRequest{ReceiptID: "A", OperatorID: "op"})
	assert.ErrorIs(t, err, link.ErrNotConnected)
}

func TestSaveWithoutReading(t *testing.T) {
	scale := &fakeScale{state: types.Connected}
	_, err := newService(scale, NewMemoryStore(), &recordingOutput{}).Save(context.Background(), SaveRequest{ReceiptID: "A", OperatorID: "op"})
	assert.ErrorIs(t, err, ErrNoReading)
}

func TestSaveRequestedWeightMustMatchScale(t *testing.T) {
	s := newService(stableScale(10), NewMemoryStore(), &recordingOutput{})

	near := 10.01
	rec, err := s.Save(context.Background(), SaveRequest{ReceiptID: "A", OperatorID: "op", Weight: &near})
	require.NoError(t, err)
	assert.Equal(t, 10.01, rec.Weight)

	far := 10.5
	_, err = s.Save(context.Background(), SaveRequest{ReceiptID: "A", OperatorID: "op", Weight: &far})
	assert.ErrorIs(t, err, ErrUnstableWeight)
}

func TestSaveValidation(t *testing.T) {
	s := newService(stableScale(10), NewMemoryStore(), &recordingOutput{})
	neg := -1.0
	for _, req := range []SaveRequest{
		{OperatorID: "op"},
		{ReceiptID: "A"},
		{ReceiptID: "A", OperatorID: "op", JabaWeight: -1},
		{ReceiptID: "A", OperatorID: "op", ShrinkageDiscount: -0.1},
		{ReceiptID: "A", OperatorID: "op", Weight: &neg},
	} {
		_, err := s.Save(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
}

func TestWedgeFailureDoesNotFailSave(t *testing.T) {
	store := NewMemoryStore()
	out := &recordingOutput{err: errors.New("no display")}
	_, err := newService(stableScale(3), store, out).Save(context.Background(), SaveRequest{ReceiptID: "A", OperatorID: "op"})
	require.NoError(t, err)
	assert.Len(t, store.Records(), 1)
}

func TestFileStoreReloadsSequences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weighings.jsonl")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	s := newService(stableScale(4.25), store, &recordingOutput{})
	for i := 0; i < 2; i++ {
		_, err := s.Save(context.Background(), SaveRequest{ReceiptID: "ALB-1", OperatorID: "op"})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	store, err = OpenFileStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seq, err := store.NextSequence(context.Background(), "ALB-1")
	require.NoError(t, err)
	assert.Equal(t, 3, seq)
	require.Len(t, store.Records(), 2)
	assert.Equal(t, 4.25, store.Records()[1].Weight)
}

func TestFileStoreRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weighings.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))

	_, err := OpenFileStore(path)
	assert.ErrorContains(t, err, "line 1")
}

func TestMemoryStoreRejectsDuplicateSequence(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), types.WeighingRecord{ReceiptID: "A", SequenceNumber: 1}))
	err := store.Save(context.Background(), types.WeighingRecord{ReceiptID: "A", SequenceNumber: 1})
	assert.ErrorIs(t, err, ErrDuplicateSequence)
}

func TestFileStoreFailedWriteKeepsSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weighings.jsonl")
	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.f.Close())

	ctx := context.Background()
	err = store.Save(ctx, types.WeighingRecord{ReceiptID: "ALB-1", SequenceNumber: 1, OperatorID: "op"})
	require.Error(t, err)

	assert.Empty(t, store.Records())
	seq, err := store.NextSequence(ctx, "ALB-1")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	assert.Empty(t, reopened.Records())
}

func TestSaveAfterGarbledFrameHasNoReading(t *testing.T) {
	scale := &fakeScale{state: types.Connected, reading: &types.DecodedReading{Frame: "bc"}}
	_, err := newService(scale, NewMemoryStore(), &recordingOutput{}).Save(context.Background(), SaveRequest{ReceiptID: "A", OperatorID: "op"})
	assert.ErrorIs(t, err, ErrNoReading)
}
