package runtime

import "testing"

func TestCheckRepetitionAllowsDistinctCalls(t *testing.T) {
	r := &TurnRunner{}

	if rejected, stuck := r.checkRepetition("read_file", `{"path":"a.go"}`); rejected || stuck {
		t.Fatalf("first call should never be rejected, got rejected=%v stuck=%v", rejected, stuck)
	}
	if rejected, stuck := r.checkRepetition("read_file", `{"path":"b.go"}`); rejected || stuck {
		t.Fatalf("distinct args should never be rejected, got rejected=%v stuck=%v", rejected, stuck)
	}
}

func TestCheckRepetitionRejectsAfterThreshold(t *testing.T) {
	r := &TurnRunner{}
	args := `{"path":"a.go"}`

	// Non-bash threshold is 3: the first two identical repeats are allowed.
	if rejected, _ := r.checkRepetition("read_file", args); rejected {
		t.Fatalf("call 1 should not be rejected")
	}
	if rejected, _ := r.checkRepetition("read_file", args); rejected {
		t.Fatalf("call 2 should not be rejected")
	}
	if rejected, _ := r.checkRepetition("read_file", args); !rejected {
		t.Fatalf("call 3 (repeatN reaching threshold) should be rejected")
	}
}

func TestCheckRepetitionBashHasLowerThreshold(t *testing.T) {
	r := &TurnRunner{}
	args := `{"cmd":"ls"}`

	if rejected, _ := r.checkRepetition("bash", args); rejected {
		t.Fatalf("first bash call should not be rejected")
	}
	if rejected, _ := r.checkRepetition("bash", args); !rejected {
		t.Fatalf("second identical bash call should already be rejected (threshold 1)")
	}
}

func TestCheckRepetitionResetsOnDifferentCall(t *testing.T) {
	r := &TurnRunner{}
	r.checkRepetition("read_file", `{"path":"a.go"}`)
	r.checkRepetition("read_file", `{"path":"a.go"}`)

	// A different call resets the repeat counter.
	if rejected, _ := r.checkRepetition("read_file", `{"path":"b.go"}`); rejected {
		t.Fatalf("distinct args should reset the counter, got rejected")
	}
	if rejected, _ := r.checkRepetition("read_file", `{"path":"b.go"}`); rejected {
		t.Fatalf("second identical call after reset should still be under threshold")
	}
}

func TestCheckRepetitionStuckLoopAfterRepeatedRejections(t *testing.T) {
	r := &TurnRunner{}
	args := `{"cmd":"ls"}`

	// bashRejLimit is 2: the threshold for bash is 1, so every repeat after
	// the first is rejected and counted toward the stuck-loop limit.
	r.checkRepetition("bash", args)
	if _, stuck := r.checkRepetition("bash", args); stuck {
		t.Fatalf("first rejection should not yet be stuck")
	}
	if _, stuck := r.checkRepetition("bash", args); !stuck {
		t.Fatalf("second rejection should hit bashRejLimit and report stuck")
	}
}
