package api

import "testing"

func TestIsMutationRequest(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"fix the bug in main.go", true},
		{"create a new file config.yaml for this", true},
		{"please update 'notes.txt' with my changes", true},
		{"what does this function do?", false},
		{"explain the architecture of pkg/engine", false},
		{"build the README.md section on setup", true},
		{"remove cruft", false},
	}
	for _, c := range cases {
		if got := IsMutationRequest(c.msg); got != c.want {
			t.Errorf("IsMutationRequest(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestIsSkillCreationRequest(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"create a skill for deploying to staging", true},
		{"run the deploy skill", false},
		{"make a new skill called release-notes", true},
		{"list the skills available", false},
	}
	for _, c := range cases {
		if got := IsSkillCreationRequest(c.msg); got != c.want {
			t.Errorf("IsSkillCreationRequest(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}
