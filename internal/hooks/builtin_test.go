package hooks

import "testing"

func TestDestructiveOpPolicy(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		safe bool
	}{
		{"empty", "", true},
		{"safe ls", "ls -la", true},
		{"safe git status", "git status", true},
		{"rm -rf", "rm -rf /tmp/foo", false},
		{"git push --force", "git push --force origin main", false},
		{"git reset --hard", "git reset --hard HEAD~1", false},
		{"drop table", "DROP TABLE users", false},
	}

	p := destructiveOpPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _, _ := p.Evaluate(Call{RawCmd: tt.cmd})
			if ok != tt.safe {
				t.Errorf("cmd %q: got safe=%v, want %v", tt.cmd, ok, tt.safe)
			}
		})
	}
}

func TestSudoStripPolicyRewrites(t *testing.T) {
	p := sudoStripPolicy()
	ok, reason, modified := p.Evaluate(Call{
		RawCmd: "sudo apt-get install foo",
		Params: map[string]any{"command": "sudo apt-get install foo"},
	})
	if ok {
		t.Fatal("expected sudo-strip to report a violation (triggering rewrite)")
	}
	if reason == "" {
		t.Error("expected a non-empty reason")
	}
	if modified["command"] != "apt-get install foo" {
		t.Errorf("expected sudo stripped, got %q", modified["command"])
	}
}

func TestSystemPathWritePolicy(t *testing.T) {
	p := systemPathWritePolicy()
	ok, _, _ := p.Evaluate(Call{Params: map[string]any{"path": "/etc/passwd"}})
	if ok {
		t.Error("expected write to /etc/passwd to be denied")
	}
	ok, _, _ = p.Evaluate(Call{Params: map[string]any{"path": "/tmp/scratch.txt"}})
	if !ok {
		t.Error("expected write to /tmp to be allowed")
	}
}

func TestNewDefaultRegistryRegistersPreAndPostTool(t *testing.T) {
	reg := NewDefaultRegistry()
	if len(reg.PoliciesForHook(TypePreTool)) == 0 {
		t.Error("expected pre_tool policies registered")
	}
	if len(reg.PoliciesForHook(TypePostTool)) == 0 {
		t.Error("expected post_tool policies registered")
	}
}
