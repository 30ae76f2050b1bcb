package account

import "testing"

func intPtr(v int) *int { return &v }

func TestRegistrationValidate(t *testing.T) {
	tests := []struct {
		name   string
		reg    Registration
		fields []string
	}{
		{name: "valid", reg: Registration{Username: "alice", Password: "s3cretpass", Email: "a@example.org", Gender: "F", Age: intPtr(30)}},
		{name: "missing everything", reg: Registration{}, fields: []string{"username", "password"}},
		{name: "short password", reg: Registration{Username: "alice", Password: "short"}, fields: []string{"password"}},
		{name: "bad username", reg: Registration{Username: "al ice", Password: "s3cretpass"}, fields: []string{"username"}},
		{name: "bad email", reg: Registration{Username: "alice", Password: "s3cretpass", Email: "nope"}, fields: []string{"email"}},
		{name: "bad gender", reg: Registration{Username: "alice", Password: "s3cretpass", Gender: "X"}, fields: []string{"gender"}},
		{name: "negative age", reg: Registration{Username: "alice", Password: "s3cretpass", Age: intPtr(-1)}, fields: []string{"age"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.reg.Validate()
			if len(errs) != len(tt.fields) {
				t.Fatalf("expected errors on %v, got %v", tt.fields, errs)
			}
			for _, f := range tt.fields {
				if len(errs[f]) == 0 {
					t.Fatalf("expected an error on %s, got %v", f, errs)
				}
			}
		})
	}
}

func TestCharityRegistrationValidate(t *testing.T) {
	if errs := (CharityRegistration{Name: "Mahak", RegNumber: "1234567890"}).Validate(); errs != nil {
		t.Fatalf("expected valid charity, got %v", errs)
	}
	errs := (CharityRegistration{RegNumber: "12ab"}).Validate()
	if len(errs["name"]) == 0 || len(errs["reg_number"]) == 0 {
		t.Fatalf("expected name and reg_number errors, got %v", errs)
	}
}

func TestBenefactorRegistrationValidate(t *testing.T) {
	if errs := (BenefactorRegistration{Experience: ExperienceExpert, FreeTimePerWeek: 4}).Validate(); errs != nil {
		t.Fatalf("expected valid benefactor, got %v", errs)
	}
	errs := (BenefactorRegistration{Experience: 3, FreeTimePerWeek: -1}).Validate()
	if len(errs["experience"]) == 0 || len(errs["free_time_per_week"]) == 0 {
		t.Fatalf("expected experience and free time errors, got %v", errs)
	}
}
