package domain

type Level string

func (l Level) String() string {
	return string(l)
}

const (
	LevelCategory       Level = "category"
	LevelSubcategory    Level = "subcategory"
	LevelSubSubcategory Level = "sub-subcategory"
)

var Levels = []Level{
	LevelCategory,
	LevelSubcategory,
	LevelSubSubcategory,
}

func (l Level) DisplayName() string {
	switch l {
	case LevelCategory:
		return "Category"
	case LevelSubcategory:
		return "Subcategory"
	case LevelSubSubcategory:
		return "Sub-subcategory"
	default:
		return "Unknown"
	}
}

// Operation names a mutation kind. Used for metrics labels and error messages.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationToggle Operation = "toggle-status"
)
