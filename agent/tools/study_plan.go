package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// studyPlanSystemPrompt 学习计划的系统提示词
const studyPlanSystemPrompt = `You are a study planner. Produce a day-by-day schedule from today
until the exam date. Requirements:
- Every day lists its topics and a time allocation that sums to the stated daily hours
- Schedule a revision day roughly every fifth day to revisit earlier topics
- Keep at least one buffer day with no new topics in the final three days before the exam
- Order topics so prerequisites come before dependent material
Format each day as "Day N (YYYY-MM-DD): ..." in order.`

// StudyPlanHandler 生成到考试日的逐日学习计划。
// hours_per_day 必需；exam_date 缺省为 30 天后并在元数据中标记。
type StudyPlanHandler struct {
	provider llm.Provider
	config   Config
	// now 可注入以便测试
	now func() time.Time
}

// NewStudyPlanHandler 创建学习计划处理器
func NewStudyPlanHandler(provider llm.Provider, config Config) *StudyPlanHandler {
	return &StudyPlanHandler{provider: provider, config: config, now: time.Now}
}

// Name 返回类别
func (h *StudyPlanHandler) Name() types.Category {
	return types.CategoryStudyPlan
}

// Required 每日学时必须显式给出，不做静默兜底
func (h *StudyPlanHandler) Required() []string {
	return []string{"hours_per_day"}
}

// Handle 生成计划
func (h *StudyPlanHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	hours, err := strconv.ParseFloat(in.Params["hours_per_day"], 64)
	if err != nil || hours <= 0 {
		return nil, types.NewError(types.ErrMissingParameter,
			"hours_per_day must be a positive number").WithStage("dispatching")
	}

	// 今天零点和考试日都按用户本地时区计算，剩余天数是日历差
	now := h.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dateDefaulted := false
	examDate, err := time.ParseInLocation("2006-01-02", in.Params["exam_date"], now.Location())
	if err != nil {
		examDate = today.AddDate(0, 0, 30)
		dateDefaulted = true
	}
	days := int(math.Round(examDate.Sub(today).Hours() / 24))
	if days < 1 {
		return nil, types.NewError(types.ErrMissingParameter,
			"exam_date must be in the future").WithStage("dispatching")
	}

	grounded := len(in.Context) > 0
	user := fmt.Sprintf("Exam date: %s (%d days from today, %s). Available hours per day: %.1f.\nGoal: %s",
		examDate.Format("2006-01-02"), days, today.Format("2006-01-02"), hours, in.Question)
	if grounded {
		user += "\n\nSyllabus material to cover:\n" +
			formatContext(in.Context, h.config.ContextTokenBudget, h.config.TokenizerEncoding)
	}

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: studyPlanSystemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		Answer: completion.Content,
		Metadata: map[string]string{
			metaGrounded:      boolMeta(grounded),
			metaDateDefaulted: boolMeta(dateDefaulted),
			"exam_date":       examDate.Format("2006-01-02"),
			"days":            strconv.Itoa(days),
		},
	}
	if grounded {
		out.Sources = sourceRefs(in.Context)
	}
	return out, nil
}
