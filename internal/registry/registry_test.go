package registry

import (
	"context"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noop struct{ stage.Base }

func (noop) ExecuteTask(ctx context.Context, sc *stage.Context) error { return nil }

func newNoop() stage.Stage { return noop{} }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	r := New()
	r.Register(&Entry{ID: "B", Branch: stage.BranchReport, New: newNoop})
	r.Register(&Entry{ID: "A", Branch: stage.BranchClassifier, New: newNoop})

	// --- Act ---
	e, err := r.Lookup("A")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, stage.BranchClassifier, e.Branch)
	assert.Equal(t, []string{"A", "B"}, r.IDs())
	assert.Equal(t, 2, r.Len())

	s, err := r.Instantiate("B")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestRegistry_UnknownStage(t *testing.T) {
	t.Parallel()

	_, err := New().Instantiate("Missing")

	require.ErrorIs(t, err, ErrUnknownStage)
	assert.Contains(t, err.Error(), "'Missing'")
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register(&Entry{ID: "A", New: newNoop})

	require.PanicsWithValue(t, "stage with id 'A' already registered", func() {
		r.Register(&Entry{ID: "A", New: newNoop})
	})
	require.Panics(t, func() { r.Register(&Entry{ID: "NoCtor"}) })
}
