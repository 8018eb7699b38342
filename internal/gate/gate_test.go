package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

type fakeDirectory struct {
	attendance map[string]*types.DailyAttendance // studentID+day -> record
}

func (d *fakeDirectory) GetUser(_ context.Context, _ string) (*types.User, error) {
	return nil, interfaces.ErrUserNotFound
}

func (d *fakeDirectory) GetSchedule(_ context.Context, _ string) (*types.Schedule, error) {
	return nil, interfaces.ErrScheduleNotFound
}

func (d *fakeDirectory) GetDailyAttendance(_ context.Context, studentID, day string) (*types.DailyAttendance, error) {
	record, ok := d.attendance[studentID+"|"+day]
	if !ok {
		return nil, interfaces.ErrNoAttendance
	}
	return record, nil
}

func (d *fakeDirectory) GetClassName(_ context.Context, _ string) (string, error)   { return "", nil }
func (d *fakeDirectory) GetSubjectName(_ context.Context, _ string) (string, error) { return "", nil }

var testClock = func() time.Time {
	return time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
}

const testDay = "2026-03-09"

func testSession() *types.Session {
	return &types.Session{
		ID:        "sess-1",
		TeacherID: "teacher-1",
		ClassID:   "class-7a",
		Status:    types.SessionActive,
	}
}

func TestAuthorizeTeacher(t *testing.T) {
	g := NewAt(&fakeDirectory{}, testClock)
	session := testSession()

	owner := &types.User{ID: "teacher-1", Role: types.RoleTeacher}
	if err := g.Authorize(context.Background(), owner, session); err != nil {
		t.Errorf("owning teacher denied: %v", err)
	}

	other := &types.User{ID: "teacher-2", Role: types.RoleTeacher}
	if err := g.Authorize(context.Background(), other, session); !errors.Is(err, ErrNotSessionTeacher) {
		t.Errorf("other teacher: error = %v, want %v", err, ErrNotSessionTeacher)
	}
}

func TestAuthorizeStudentAttendanceMatrix(t *testing.T) {
	tests := []struct {
		name   string
		status string // "" means no record
		want   error
	}{
		{"no record means not arrived", "", ErrNotArrived},
		{"present", types.AttendancePresent, nil},
		{"late", types.AttendanceLate, nil},
		{"excused", types.AttendanceExcused, nil},
		{"absent", types.AttendanceAbsent, ErrMarkedAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &fakeDirectory{attendance: map[string]*types.DailyAttendance{}}
			if tt.status != "" {
				dir.attendance["student-1|"+testDay] = &types.DailyAttendance{
					StudentID: "student-1", Day: testDay, Status: tt.status,
				}
			}

			g := NewAt(dir, testClock)
			student := &types.User{ID: "student-1", Role: types.RoleStudent, ClassID: "class-7a"}
			err := g.Authorize(context.Background(), student, testSession())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthorizeStudentWrongClass(t *testing.T) {
	g := NewAt(&fakeDirectory{}, testClock)

	student := &types.User{ID: "student-1", Role: types.RoleStudent, ClassID: "class-8b"}
	if err := g.Authorize(context.Background(), student, testSession()); !errors.Is(err, ErrNotClassMember) {
		t.Errorf("error = %v, want %v", err, ErrNotClassMember)
	}

	// A student with no class assignment is never a member.
	unassigned := &types.User{ID: "student-2", Role: types.RoleStudent}
	if err := g.Authorize(context.Background(), unassigned, testSession()); !errors.Is(err, ErrNotClassMember) {
		t.Errorf("error = %v, want %v", err, ErrNotClassMember)
	}
}

func TestAuthorizeYesterdayAttendanceDoesNotCount(t *testing.T) {
	dir := &fakeDirectory{attendance: map[string]*types.DailyAttendance{
		"student-1|2026-03-08": {StudentID: "student-1", Day: "2026-03-08", Status: types.AttendancePresent},
	}}
	g := NewAt(dir, testClock)

	student := &types.User{ID: "student-1", Role: types.RoleStudent, ClassID: "class-7a"}
	if err := g.Authorize(context.Background(), student, testSession()); !errors.Is(err, ErrNotArrived) {
		t.Errorf("error = %v, want %v", err, ErrNotArrived)
	}
}

func TestAuthorizeRejectsOtherRoles(t *testing.T) {
	g := NewAt(&fakeDirectory{}, testClock)

	for _, role := range []string{types.RoleAdmin, types.RoleParent, "JANITOR"} {
		user := &types.User{ID: "u-1", Role: role}
		if err := g.Authorize(context.Background(), user, testSession()); !errors.Is(err, ErrRoleNotAllowed) {
			t.Errorf("role %s: error = %v, want %v", role, err, ErrRoleNotAllowed)
		}
	}
}

func TestIsDenial(t *testing.T) {
	for _, err := range []error{ErrRoleNotAllowed, ErrNotSessionTeacher, ErrNotClassMember, ErrNotArrived, ErrMarkedAbsent} {
		if !IsDenial(err) {
			t.Errorf("IsDenial(%v) = false, want true", err)
		}
	}
	if IsDenial(errors.New("disk on fire")) {
		t.Error("infrastructure error classified as denial")
	}
}
