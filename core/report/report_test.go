package report_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/core/grading"
	"github.com/trezcool/homeschool/core/report"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
	"github.com/trezcool/homeschool/testutil"
)

type fixture struct {
	ctx    context.Context
	env    *testutil.Env
	fam    testutil.Family
	ada    student.Student
	adaAct core.Actor
	bob    student.Student
	march  report.Range
}

// setup gives Ada, in March 2024:
//   - Math (TEST 60%, HOMEWORK 40%): tests 90 and 80, homework 100, one pending
//   - Reading (unweighted): 70 and one ungraded
//   - one ungraded assignment without a subject
//
// plus a graded math test in February.
func setup(t *testing.T) *fixture {
	testutil.FreezeTime(t, time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC))
	f := &fixture{ctx: context.Background(), env: testutil.NewEnv(t)}
	env := f.env
	f.fam = testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	adaUser := testutil.CreateUser(t, env.Repos.Users, f.fam.ID, "Ada", "ada@doe.test", core.RoleStudent, true)
	f.ada = testutil.CreateStudent(t, env.Repos.Students, f.fam.ID, "Ada", adaUser.ID)
	f.adaAct = adaUser.Actor()
	f.bob = testutil.CreateStudent(t, env.Repos.Students, f.fam.ID, "Bob", "")

	math := testutil.CreateSubject(t, env.Repos.Subjects, f.fam.ID, "Math",
		subject.Weight{Category: grading.CategoryTest, Weight: 60},
		subject.Weight{Category: grading.CategoryHomework, Weight: 40},
	)
	reading := testutil.CreateSubject(t, env.Repos.Subjects, f.fam.ID, "Reading")

	day := func(s string) time.Time { return testutil.Date(t, s) }
	for _, a := range []assignment.Assignment{
		testutil.Completed(f.ada, math.ID, "Fractions test", day("2024-03-04"), testutil.FloatPtr(90), "TEST"),
		testutil.Completed(f.ada, math.ID, "Decimals test", day("2024-03-05"), testutil.FloatPtr(80), "TEST"),
		testutil.Completed(f.ada, math.ID, "Worksheet", day("2024-03-05"), testutil.FloatPtr(100), "HOMEWORK"),
		{FamilyID: f.fam.ID, StudentID: f.ada.ID, SubjectID: null.StringFrom(math.ID), Title: "Pending"},
		testutil.Completed(f.ada, reading.ID, "Book report", day("2024-03-06"), testutil.FloatPtr(70), ""),
		testutil.Completed(f.ada, reading.ID, "Reading log", day("2024-03-07"), nil, ""),
		testutil.Completed(f.ada, "", "Nature walk", day("2024-03-04"), nil, ""),
		testutil.Completed(f.ada, math.ID, "February test", day("2024-02-28"), testutil.FloatPtr(40), "TEST"),
	} {
		testutil.CreateAssignment(t, env.Repos.Assignments, a)
	}

	ng := goal.NewGoal{StudentID: f.ada.ID, SubjectID: &math.ID, Title: "Math four", TargetCount: 4, TermStart: "2024-03-01", TermEnd: "2024-03-31"}
	require.NoError(t, ng.Validate(env.Validate))
	_, err := env.Goals.Create(f.ctx, f.fam.ParentActor(), ng)
	require.NoError(t, err)

	f.march, err = report.ParseRange("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	return f
}

func TestService_StudentReport(t *testing.T) {
	f := setup(t)

	rep, err := f.env.Reports.StudentReport(f.ctx, f.fam.ParentActor(), f.ada.ID, f.march)
	require.NoError(t, err)

	require.Len(t, rep.Subjects, 3)
	names := []string{rep.Subjects[0].Name, rep.Subjects[1].Name, rep.Subjects[2].Name}
	assert.Equal(t, []string{"Math", "Reading", "No subject"}, names)

	mathSum := rep.Subjects[0]
	require.NotNil(t, mathSum.GPA)
	assert.Equal(t, 91.0, *mathSum.GPA, "(85*60 + 100*40) / 100")
	assert.Equal(t, "A-", mathSum.Letter)
	assert.Equal(t, 3, mathSum.Completed)
	assert.Equal(t, 4, mathSum.Total)
	assert.Equal(t, 75.0, mathSum.CompletionRate)

	readingSum := rep.Subjects[1]
	require.NotNil(t, readingSum.GPA)
	assert.Equal(t, 70.0, *readingSum.GPA, "ungraded work is ignored")
	assert.Equal(t, "C-", readingSum.Letter)
	assert.Equal(t, 100.0, readingSum.CompletionRate)

	noSubject := rep.Subjects[2]
	assert.Nil(t, noSubject.GPA)
	assert.Empty(t, noSubject.Letter)
	assert.False(t, noSubject.SubjectID.Valid)

	require.NotNil(t, rep.OverallGPA)
	assert.Equal(t, 80.5, *rep.OverallGPA)
	assert.Equal(t, "B-", rep.OverallLetter)
	assert.Equal(t, 6, rep.Completed)
	assert.Equal(t, 7, rep.Total)
	assert.Equal(t, 85.7, rep.CompletionRate)
	assert.Equal(t, 4, rep.AttendanceDays, "distinct days with completed work")

	require.Len(t, rep.Goals, 1)
	assert.Equal(t, 3, rep.Goals[0].CurrentCount)
	assert.Equal(t, 75.0, rep.Goals[0].Progress)

	t.Run("without range", func(t *testing.T) {
		rep, err := f.env.Reports.StudentReport(f.ctx, f.adaAct, f.ada.ID, report.Range{})
		require.NoError(t, err)
		assert.Equal(t, 8, rep.Total)
		assert.Equal(t, 5, rep.AttendanceDays)
		assert.Equal(t, 82.0, *rep.Subjects[0].GPA, "(70*60 + 100*40) / 100 with the February test")
	})

	t.Run("students only see themselves", func(t *testing.T) {
		_, err := f.env.Reports.StudentReport(f.ctx, f.adaAct, f.bob.ID, f.march)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_FamilyReport(t *testing.T) {
	f := setup(t)

	reps, err := f.env.Reports.FamilyReport(f.ctx, f.fam.ParentActor(), f.march)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, f.ada.ID, reps[0].Student.ID)

	bobRep := reps[1]
	assert.Equal(t, f.bob.ID, bobRep.Student.ID)
	assert.Nil(t, bobRep.OverallGPA)
	assert.Empty(t, bobRep.Subjects)
	assert.Empty(t, bobRep.Goals)
	assert.Equal(t, 0.0, bobRep.CompletionRate)

	_, err = f.env.Reports.FamilyReport(f.ctx, f.adaAct, f.march)
	assert.IsType(t, &core.PermissionError{}, err)
}

func TestParseRange(t *testing.T) {
	rng, err := report.ParseRange("", "")
	require.NoError(t, err)
	assert.False(t, rng.From.Valid)
	assert.True(t, rng.Contains(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)))

	rng, err = report.ParseRange("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.True(t, rng.Contains(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, rng.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, rng.Contains(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)))

	for _, tt := range []struct{ from, to, field string }{
		{"03/01/2024", "", "from"},
		{"", "2024-13-01", "to"},
		{"2024-03-31", "2024-03-01", "to"},
	} {
		_, err := report.ParseRange(tt.from, tt.to)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr), "got %v", err)
		assert.Equal(t, tt.field, vErr.Fields[0].Field)
	}
}

func TestExportXLSX(t *testing.T) {
	f := setup(t)
	rep, err := f.env.Reports.StudentReport(f.ctx, f.fam.ParentActor(), f.ada.ID, f.march)
	require.NoError(t, err)
	assert.Equal(t, "report_ada_20240320.xlsx", rep.FileName())

	var buf bytes.Buffer
	require.NoError(t, report.ExportXLSX(rep, &buf))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"Summary", "Subjects", "Goals"}, wb.GetSheetList())

	cell := func(sheet, axis string) string {
		v, err := wb.GetCellValue(sheet, axis)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Ada", cell("Summary", "B1"))
	assert.Equal(t, "2024-03-01", cell("Summary", "B3"))
	assert.Equal(t, "80.5", cell("Summary", "B5"))
	assert.Equal(t, "B-", cell("Summary", "B6"))
	assert.Equal(t, "4", cell("Summary", "B10"))

	rows, err := wb.GetRows("Subjects")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Math", "91", "A-", "3", "4", "75"}, rows[1])
	assert.Equal(t, "-", rows[3][1], "no GPA")

	rows, err = wb.GetRows("Goals")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Math four", "3", "4", "75", "2024-03-01", "2024-03-31"}, rows[1])
}
