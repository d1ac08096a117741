package answerbank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/applypilot/internal/form"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// mockBackend is a testify mock of Backend.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Load(ctx context.Context) ([]Entry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]Entry)
	return entries, args.Error(1)
}

func (m *mockBackend) Persist(ctx context.Context, changed Entry, all []Entry) error {
	args := m.Called(ctx, changed, all)
	return args.Error(0)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes keys and lets later duplicates win", func(t *testing.T) {
		be := new(mockBackend)
		be.On("Load", ctx).Return([]Entry{
			{Question: "Expected salary *", Type: form.Text, Answer: "5000000"},
			{Question: "Do you have a STR?", Type: form.SingleChoice, Options: []string{"Ya", "Tidak"}, Answer: "Ya"},
			{Question: "expected   salary", Type: form.Text, Answer: "6000000"},
			{Question: "  ", Answer: "ignored"},
		}, nil)

		bank, err := Open(ctx, be, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Equal(t, 2, bank.Len())
		e, ok := bank.Lookup("EXPECTED SALARY")
		require.True(t, ok)
		assert.Equal(t, "6000000", e.Answer)
		assert.Equal(t, "Do you have a STR?", bank.Entries()[1].Question)
		be.AssertExpectations(t)
	})

	t.Run("propagates load errors", func(t *testing.T) {
		be := new(mockBackend)
		loadErr := errors.New("disk on fire")
		be.On("Load", ctx).Return(nil, loadErr)

		_, err := Open(ctx, be, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, loadErr)
	})
}

func TestLookup_IgnoresUnanswered(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	be.On("Load", ctx).Return([]Entry{{Question: "Pending question", Answer: ""}}, nil)

	bank, err := Open(ctx, be, zap.NewNop())
	require.NoError(t, err)

	_, ok := bank.Lookup("Pending question")
	assert.False(t, ok)
	assert.Equal(t, 1, bank.Len())
}

func TestPut(t *testing.T) {
	ctx := context.Background()

	t.Run("persists before returning and overwrites in place", func(t *testing.T) {
		be := new(mockBackend)
		be.On("Load", ctx).Return([]Entry{{Question: "First question", Answer: "a"}}, nil)
		be.On("Persist", ctx, mock.AnythingOfType("Entry"), mock.AnythingOfType("[]answerbank.Entry")).Return(nil)

		bank, err := Open(ctx, be, zap.NewNop())
		require.NoError(t, err)

		require.NoError(t, bank.Put(ctx, Entry{Question: "Second question*", Type: form.Dropdown, Options: []string{"x"}, Answer: "x"}))
		require.NoError(t, bank.Put(ctx, Entry{Question: "first QUESTION", Answer: "b"}))

		entries := bank.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, "first QUESTION", entries[0].Question)
		assert.Equal(t, "b", entries[0].Answer)
		assert.Equal(t, "Second question", entries[1].Question)

		last := be.Calls[len(be.Calls)-1]
		all := last.Arguments.Get(2).([]Entry)
		assert.Len(t, all, 2, "file backends receive the full bank")
	})

	t.Run("rolls back memory on persistence failure", func(t *testing.T) {
		be := new(mockBackend)
		be.On("Load", ctx).Return([]Entry{{Question: "Existing question", Answer: "old"}}, nil)
		be.On("Persist", ctx, mock.Anything, mock.Anything).Return(errors.New("read-only"))

		bank, err := Open(ctx, be, zap.NewNop())
		require.NoError(t, err)

		assert.Error(t, bank.Put(ctx, Entry{Question: "Existing question", Answer: "new"}))
		assert.Error(t, bank.Put(ctx, Entry{Question: "Brand new question", Answer: "x"}))

		e, ok := bank.Lookup("Existing question")
		require.True(t, ok)
		assert.Equal(t, "old", e.Answer)
		_, ok = bank.Lookup("Brand new question")
		assert.False(t, ok)
		assert.Equal(t, 1, bank.Len())
	})

	t.Run("rejects questions that are too short", func(t *testing.T) {
		be := new(mockBackend)
		be.On("Load", ctx).Return(nil, nil)
		bank, err := Open(ctx, be, zap.NewNop())
		require.NoError(t, err)

		assert.Error(t, bank.Put(ctx, Entry{Question: "ab*", Answer: "x"}))
		be.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEntries_AreCopies(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	be.On("Load", ctx).Return([]Entry{{Question: "Pick a city", Type: form.Dropdown, Options: []string{"Jakarta"}, Answer: "Jakarta"}}, nil)
	bank, err := Open(ctx, be, zap.NewNop())
	require.NoError(t, err)

	entries := bank.Entries()
	entries[0].Options[0] = "mutated"

	e, _ := bank.Lookup("Pick a city")
	assert.Equal(t, "Jakarta", e.Options[0])
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	src := new(mockBackend)
	src.On("Load", ctx).Return([]Entry{{Question: "One question"}, {Question: "Two question"}}, nil)
	dst := new(mockBackend)
	dst.On("Persist", ctx, mock.Anything, mock.Anything).Return(nil)

	n, err := Migrate(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	dst.AssertNumberOfCalls(t, "Persist", 2)
}
