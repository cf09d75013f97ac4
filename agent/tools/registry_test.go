package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/studybuddy/testutil"
	"github.com/BaSui01/studybuddy/types"
)

// staticHandler 测试用处理器
type staticHandler struct {
	category types.Category
	required []string
	out      *Output
}

func (h *staticHandler) Name() types.Category { return h.category }
func (h *staticHandler) Required() []string   { return h.required }
func (h *staticHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	return h.out, nil
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&staticHandler{
		category: types.CategoryQuiz,
		out:      &Output{Answer: "quiz here"},
	})

	out, err := r.Dispatch(testutil.TestContext(t), types.CategoryQuiz, Input{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "quiz here", out.Answer)
}

func TestRegistry_UnregisteredCategory(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Dispatch(testutil.TestContext(t), types.CategoryQuiz, Input{})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidCategory, types.GetErrorCode(err))
}

func TestRegistry_MissingRequiredParameter(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&staticHandler{
		category: types.CategoryStudyPlan,
		required: []string{"hours_per_day"},
		out:      &Output{Answer: "plan"},
	})

	_, err := r.Dispatch(testutil.TestContext(t), types.CategoryStudyPlan, Input{
		Params: map[string]string{"exam_date": "2026-12-01"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingParameter, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "hours_per_day")

	out, err := r.Dispatch(testutil.TestContext(t), types.CategoryStudyPlan, Input{
		Params: map[string]string{"hours_per_day": "4"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plan", out.Answer)
}

func TestRegistry_Categories(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&staticHandler{category: types.CategoryQuiz})
	r.Register(&staticHandler{category: types.CategoryFlashcards})

	assert.Equal(t, []types.Category{types.CategoryQuiz, types.CategoryFlashcards}, r.Categories())
}
