package sampling

import "errors"

var (
	errEmptyDecomposition       = errors.New("sampling: decomposition has no subtasks")
	errMissingSubtaskID         = errors.New("sampling: subtask missing id")
	errUnknownDependency        = errors.New("sampling: subtask dependency references unknown sibling id")
	errChosenIndexOutOfRange    = errors.New("sampling: chosen_index out of range")
	errUnknownIntegrationStatus = errors.New("sampling: unrecognized integration status")
)
