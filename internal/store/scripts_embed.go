package store

import _ "embed"

//go:embed scripts/decompose_and_store_subtasks.lua
var decomposeAndStoreSubtasksLua string

//go:embed scripts/assign_to_specialist.lua
var assignToSpecialistLua string

//go:embed scripts/detect_and_queue_conflict.lua
var detectAndQueueConflictLua string

//go:embed scripts/synthesize_progress.lua
var synthesizeProgressLua string

//go:embed scripts/reassign_from_instance.lua
var reassignFromInstanceLua string
