package hooks

import (
	"path/filepath"
	"strings"
)

// RegisterBuiltinPreTool installs the deny-list, rewrite-list, and
// warn-list pre_tool policies, lifted from the teacher's
// internal/gate/builtin_pretooluse.go deny patterns.
func RegisterBuiltinPreTool(reg *Registry) {
	_ = reg.Register(destructiveOpPolicy())
	_ = reg.Register(sudoStripPolicy())
	_ = reg.Register(systemPathWritePolicy())
	_ = reg.Register(largeFileWarnPolicy())
}

// RegisterBuiltinPostTool installs the default pass-through post_tool
// policy (spec.md §4.7: "passes through the result unchanged by default").
func RegisterBuiltinPostTool(reg *Registry) {
	_ = reg.Register(&Policy{
		ID:          "post-tool-passthrough",
		Hook:        TypePostTool,
		Description: "pass through tool result unchanged",
		Mode:        ModeSoft,
		Evaluate: func(c Call) (bool, string, map[string]any) {
			return true, "", nil
		},
	})
}

// destructivePatterns lists command substrings considered destructive.
var destructivePatterns = []string{
	"rm -rf",
	"rm -r ",
	"git push --force",
	"git push -f",
	"git reset --hard",
	"git clean -f",
	"git branch -D",
	"DROP TABLE",
	"drop table",
	"TRUNCATE",
	"truncate ",
	"docker rm ",
	"docker rmi ",
	"mkfs",
	"dd if=",
}

func destructiveOpPolicy() *Policy {
	return &Policy{
		ID:          "destructive-op",
		Hook:        TypePreTool,
		Description: "destructive command detected",
		Mode:        ModeStrict,
		Hint:        "this command appears destructive",
		Evaluate: func(c Call) (bool, string, map[string]any) {
			cmd := c.RawCmd
			if cmd == "" {
				return true, "", nil
			}
			for _, pattern := range destructivePatterns {
				if strings.Contains(cmd, pattern) {
					return false, "dangerous command matched pattern: " + pattern, nil
				}
			}
			return true, "", nil
		},
	}
}

// sudoStripPolicy rewrites a command to remove every "sudo " in it rather
// than deny it outright — spec.md §4.7's rewrite-list example.
func sudoStripPolicy() *Policy {
	return &Policy{
		ID:          "sudo-strip",
		Hook:        TypePreTool,
		Description: "strip sudo from shell commands",
		Mode:        ModeSoft,
		Evaluate: func(c Call) (bool, string, map[string]any) {
			cmd := c.RawCmd
			if !strings.Contains(cmd, "sudo ") {
				return true, "", nil
			}
			rewritten := strings.ReplaceAll(cmd, "sudo ", "")
			modified := map[string]any{}
			for k, v := range c.Params {
				modified[k] = v
			}
			modified["command"] = rewritten
			return false, "stripped sudo from command", modified
		},
	}
}

// systemPathWritePolicy denies writes to well-known system paths.
func systemPathWritePolicy() *Policy {
	protected := []string{"/etc", "/usr", "/bin", "/sbin", "/boot", "/sys", "/proc"}
	return &Policy{
		ID:          "system-path-write",
		Hook:        TypePreTool,
		Description: "write targets a protected system path",
		Mode:        ModeStrict,
		Evaluate: func(c Call) (bool, string, map[string]any) {
			path, _ := c.Params["path"].(string)
			if path == "" {
				return true, "", nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return true, "", nil
			}
			for _, p := range protected {
				if strings.HasPrefix(abs, p+"/") || abs == p {
					return false, "write targets protected system path " + p, nil
				}
			}
			return true, "", nil
		},
	}
}

// largeFileWarnPolicy warns (but allows) when a tool reports a
// content/size field above a threshold.
func largeFileWarnPolicy() *Policy {
	const threshold = 5 * 1024 * 1024
	return &Policy{
		ID:          "large-file-op",
		Hook:        TypePreTool,
		Description: "large file operation",
		Mode:        ModeSoft,
		Hint:        "operation touches a file larger than 5MB",
		Evaluate: func(c Call) (bool, string, map[string]any) {
			size, ok := c.Params["size_bytes"].(float64)
			if !ok || size < threshold {
				return true, "", nil
			}
			return false, "file operation size exceeds 5MB", nil
		},
	}
}
