package member

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func sampleMember() Member {
	return Member{
		ID:               "member-1",
		Name:             "Alice Doe",
		Email:            "alice@example.com",
		PhoneNumber:      "1112223333",
		Age:              20,
		Place:            "Pune",
		RegistrationDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Version:          3,
	}
}

func TestUpdateRequest_HasChanges(t *testing.T) {
	m := sampleMember()

	cases := []struct {
		name  string
		delta UpdateRequest
		want  bool
	}{
		{"empty delta", UpdateRequest{}, false},
		{"same values", UpdateRequest{Name: ptr("Alice Doe"), Age: ptr(20)}, false},
		{"email differs only by case", UpdateRequest{Email: ptr("ALICE@Example.Com")}, false},
		{"email differs only by padding", UpdateRequest{Email: ptr("  alice@example.com ")}, false},
		{"new email", UpdateRequest{Email: ptr("alice.new@example.com")}, true},
		{"new age", UpdateRequest{Age: ptr(30)}, true},
		{"explicit zero age", UpdateRequest{Age: ptr(0)}, true},
		{"new phone", UpdateRequest{PhoneNumber: ptr("9627713570")}, true},
		{"name case change", UpdateRequest{Name: ptr("alice doe")}, true},
		{"one changed among unchanged", UpdateRequest{Name: ptr("Alice Doe"), Place: ptr("Mumbai")}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.delta.HasChanges(m); got != c.want {
				t.Errorf("HasChanges() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestUpdateRequest_ApplyTo(t *testing.T) {
	m := sampleMember()
	delta := UpdateRequest{
		Email: ptr("  Alice.New@Example.COM "),
		Age:   ptr(30),
	}

	out := delta.ApplyTo(m)

	if out.Email != "alice.new@example.com" {
		t.Errorf("expected normalized email, got %q", out.Email)
	}
	if out.Age != 30 {
		t.Errorf("expected age 30, got %d", out.Age)
	}
	if out.Name != m.Name || out.PhoneNumber != m.PhoneNumber || out.Place != m.Place {
		t.Errorf("unrequested fields changed: %+v", out)
	}
	if out.ID != m.ID || out.Version != m.Version {
		t.Errorf("identity fields changed: %+v", out)
	}
	if m.Email != "alice@example.com" || m.Age != 20 {
		t.Errorf("input member mutated: %+v", m)
	}
}

func TestUpdateRequest_ApplyToExplicitZeroAge(t *testing.T) {
	out := UpdateRequest{Age: ptr(0)}.ApplyTo(sampleMember())
	if out.Age != 0 {
		t.Errorf("explicit zero age must be applied, got %d", out.Age)
	}
}

func TestSnapshotOf(t *testing.T) {
	snap := SnapshotOf(sampleMember())
	want := Snapshot{Name: "Alice Doe", Email: "alice@example.com", PhoneNumber: "1112223333", Age: 20, Place: "Pune"}
	if snap != want {
		t.Errorf("SnapshotOf() = %+v, want %+v", snap, want)
	}
}

func TestNormalizers(t *testing.T) {
	if got := NormalizeEmail("  John.Smith@EXAMPLE.com  "); got != "john.smith@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
	if got := NormalizeName("  john   SMITH "); got != "John Smith" {
		t.Errorf("NormalizeName() = %q", got)
	}
	if got := NormalizePlace("  new   delhi "); got != "new delhi" {
		t.Errorf("NormalizePlace() = %q", got)
	}
}

func TestRegisterRequest_Validate(t *testing.T) {
	valid := RegisterRequest{Name: "Jane Doe", Email: "jane@example.com", PhoneNumber: "1234567890", Age: 25, Place: "Pune"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"empty name", RegisterRequest{Name: "", Email: "jane@example.com", PhoneNumber: "1234567890"}},
		{"numeric name", RegisterRequest{Name: "12345", Email: "jane@example.com", PhoneNumber: "1234567890"}},
		{"long name", RegisterRequest{Name: "abcdefghijklmnopqrstuvwxyz", Email: "jane@example.com", PhoneNumber: "1234567890"}},
		{"bad email", RegisterRequest{Name: "Jane", Email: "not-an-email", PhoneNumber: "1234567890"}},
		{"short phone", RegisterRequest{Name: "Jane", Email: "jane@example.com", PhoneNumber: "123"}},
		{"alpha phone", RegisterRequest{Name: "Jane", Email: "jane@example.com", PhoneNumber: "12345abcde"}},
		{"negative age", RegisterRequest{Name: "Jane", Email: "jane@example.com", PhoneNumber: "1234567890", Age: -1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.req.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
