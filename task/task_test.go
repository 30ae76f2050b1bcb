package task

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseState(t *testing.T) {
	for _, s := range []State{Pending, Waiting, Assigned, Done} {
		got, err := ParseState(s.Code())
		if err != nil {
			t.Fatalf("parse %q: %v", s.Code(), err)
		}
		if got != s {
			t.Fatalf("expected %v, got %v", s, got)
		}
	}
	for _, code := range []string{"", "p", "X", "Pending"} {
		if _, err := ParseState(code); err == nil {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
}

func TestStateJSONRejectsUnknownCodes(t *testing.T) {
	var tk Task
	err := json.Unmarshal([]byte(`{"state":"Z"}`), &tk)
	if err == nil || !strings.Contains(err.Error(), "unknown task state") {
		t.Fatalf("expected unknown state error, got %v", err)
	}

	if _, err := json.Marshal(State(9)); err == nil {
		t.Fatal("expected marshalling an invalid state to fail")
	}

	data, err := json.Marshal(Task{State: Assigned})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"state":"A"`) {
		t.Fatalf("expected state code in %s", data)
	}
}

func TestTaskJSONAssignee(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	benefactor := uuid.New()
	waiting, err := NewTask(uuid.New(), Task{Title: "Cook"}, now).Request(benefactor, now)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	rejected, err := waiting.Respond(ResponseReject, now)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	data, err := json.Marshal(rejected)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"assigned_benefactor":null`) {
		t.Fatalf("expected a null assignee in %s", data)
	}
	if strings.Count(string(data), "assigned_benefactor") != 1 {
		t.Fatalf("expected a single assignee key in %s", data)
	}
	var back Task
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.HasAssignee() || back.ID != rejected.ID || back.State != Pending || back.Title != "Cook" {
		t.Fatalf("unexpected round trip %+v", back)
	}

	data, err = json.Marshal(waiting)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"assigned_benefactor":"`+benefactor.String()+`"`) {
		t.Fatalf("expected the assignee in %s", data)
	}
	back = Task{}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.AssignedBenefactor != benefactor || back.State != Waiting {
		t.Fatalf("unexpected round trip %+v", back)
	}
}

func TestNewTaskIgnoresDraftOwnership(t *testing.T) {
	charity := uuid.New()
	draft := Task{
		ID:                 uuid.New(),
		State:              Done,
		CharityID:          uuid.New(),
		AssignedBenefactor: uuid.New(),
		Title:              "Cook",
		GenderLimit:        GenderFemale,
	}
	created := NewTask(charity, draft, time.Now())
	if created.ID == draft.ID || created.ID == uuid.Nil {
		t.Fatal("expected a fresh id")
	}
	if created.State != Pending {
		t.Fatalf("expected Pending, got %v", created.State)
	}
	if created.CharityID != charity {
		t.Fatalf("expected charity %s, got %s", charity, created.CharityID)
	}
	if created.HasAssignee() {
		t.Fatal("expected no assignee")
	}
	if created.Title != "Cook" || created.GenderLimit != GenderFemale {
		t.Fatalf("descriptive fields not copied: %+v", created)
	}
}
