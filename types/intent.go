package types

// Category is one of the closed set of capabilities the intent router can
// select. The set is closed by design: classifier output is validated at the
// boundary and an unrecognized value is an error, never a new category.
type Category string

const (
	CategoryRetrieveDocuments  Category = "retrieve_documents"
	CategoryWebSearch          Category = "web_search"
	CategoryExamAnswer         Category = "exam_answer"
	CategoryStudyPlan          Category = "study_plan"
	CategoryQuiz               Category = "quiz"
	CategoryFlashcards         Category = "flashcards"
	CategoryConceptExplain     Category = "concept_explain"
	CategoryImportantQuestions Category = "predict_important_questions"
)

// AllCategories lists every valid category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryRetrieveDocuments,
		CategoryWebSearch,
		CategoryExamAnswer,
		CategoryStudyPlan,
		CategoryQuiz,
		CategoryFlashcards,
		CategoryConceptExplain,
		CategoryImportantQuestions,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryRetrieveDocuments, CategoryWebSearch, CategoryExamAnswer,
		CategoryStudyPlan, CategoryQuiz, CategoryFlashcards,
		CategoryConceptExplain, CategoryImportantQuestions:
		return true
	}
	return false
}

// ParseCategory validates a raw classifier output against the closed set.
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if !c.Valid() {
		return "", NewError(ErrInvalidCategory, "unrecognized category: "+raw)
	}
	return c, nil
}
