package echoapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/testutil"
)

func Test_assignmentApi_lifecycle(t *testing.T) {
	app := setup(t)
	ada, adaUser := testutil.CreateLinkedStudent(t, app.Env, app.fam.ID, "Ada", "ada@doe.test")
	parentToken := getToken(t, app, app.fam.Parent)
	adaToken := getToken(t, app, adaUser)

	rec := app.do(http.MethodPost, "/api/assignments", parentToken,
		[]byte(`{"student_ids": ["`+ada.ID+`"], "title": "Long division", "due_date": "2024-03-08", "category": "homework"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created []assignment.Assignment
	decode(t, rec, &created)
	require.Len(t, created, 1)
	a := created[0]
	assert.Equal(t, assignment.StatusAssigned, a.Status)
	path := "/api/assignments/" + a.ID

	app.run(t, []httpTest{
		{
			name:     "students cannot assign",
			method:   http.MethodPost,
			path:     "/api/assignments",
			body:     []byte(`{"student_ids": ["` + ada.ID + `"], "title": "Free time"}`),
			token:    adaToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "parents cannot complete",
			method:   http.MethodPost,
			path:     path + "/status",
			body:     []byte(`{"status": "COMPLETED"}`),
			token:    parentToken,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "role PARENT cannot change the status of ASSIGNED assignments"}),
		},
		{
			name:     "unknown status",
			method:   http.MethodPost,
			path:     path + "/status",
			body:     []byte(`{"status": "DONE"}`),
			token:    adaToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "grading pending work",
			method:   http.MethodPost,
			path:     path + "/grade",
			body:     []byte(`{"grade_value": 90}`),
			token:    parentToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "only completed assignments can be graded"}),
		},
		{
			name:     "student completes",
			method:   http.MethodPost,
			path:     path + "/status",
			body:     []byte(`{"status": "completed", "comment": "Done!"}`),
			token:    adaToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "return without feedback",
			method:   http.MethodPost,
			path:     path + "/status",
			body:     []byte(`{"status": "ASSIGNED"}`),
			token:    parentToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"comment": "feedback is required when returning an assignment"}),
		},
		{
			name:     "parent grades",
			method:   http.MethodPost,
			path:     path + "/grade",
			body:     []byte(`{"grade_value": 91, "comment": "Nice work"}`),
			token:    parentToken,
			wantCode: http.StatusOK,
		},
	})

	rec = app.do(http.MethodGet, path, adaToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &a)
	assert.Equal(t, assignment.StatusCompleted, a.Status)
	assert.Equal(t, "A-", a.GradeLabel.String)

	var comments []activity.Comment
	decode(t, app.do(http.MethodGet, path+"/comments", parentToken), &comments)
	assert.Len(t, comments, 2)

	var history []activity.Log
	decode(t, app.do(http.MethodGet, path+"/history", parentToken), &history)
	assert.Len(t, history, 5, "created, two comments, completed, graded")

	var notifs []activity.Notification
	decode(t, app.do(http.MethodGet, "/api/notifications?unread=true", parentToken), &notifs)
	require.NotEmpty(t, notifs)
	assert.Equal(t, activity.NotificationAssignmentCompleted, notifs[len(notifs)-1].Type)

	rec = app.do(http.MethodPost, "/api/notifications/"+notifs[0].ID+"/read", parentToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(http.MethodPost, "/api/notifications/"+notifs[0].ID+"/read", adaToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var marked MarkReadResponse
	decode(t, app.do(http.MethodPost, "/api/notifications/read-all", parentToken), &marked)
	assert.Equal(t, len(notifs)-1, marked.Marked)

	rec = app.do(http.MethodGet, "/api/activity?limit=2", parentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []activity.Log
	decode(t, rec, &logs)
	assert.Len(t, logs, 2)
	assert.Equal(t, http.StatusForbidden, app.do(http.MethodGet, "/api/activity", adaToken).Code)

	rec = app.do(http.MethodDelete, path, parentToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, path, parentToken).Code)
}

func Test_assignmentApi_query(t *testing.T) {
	app := setup(t)
	ada, adaUser := testutil.CreateLinkedStudent(t, app.Env, app.fam.ID, "Ada", "ada@doe.test")
	bob := testutil.CreateStudent(t, app.Repos.Students, app.fam.ID, "Bob", "")
	math := testutil.CreateSubject(t, app.Repos.Subjects, app.fam.ID, "Math")
	day := func(s string) *string { return testutil.StrPtr(s) }

	for _, na := range []assignment.NewAssignment{
		{StudentIDs: []string{ada.ID, bob.ID}, Title: "Fractions", SubjectID: &math.ID, DueDate: day("2024-03-04")},
		{StudentIDs: []string{ada.ID}, Title: "Book report", DueDate: day("2024-03-10")},
		{StudentIDs: []string{bob.ID}, Title: "Nature walk"},
	} {
		require.NoError(t, na.Validate(app.Validate))
		_, err := app.Assignments.Create(context.Background(), app.fam.ParentActor(), na)
		require.NoError(t, err)
	}
	parentToken := getToken(t, app, app.fam.Parent)

	titles := func(token, query string) []string {
		rec := app.do(http.MethodGet, "/api/assignments"+query, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var list []assignment.Assignment
		decode(t, rec, &list)
		var ts []string
		for _, a := range list {
			ts = append(ts, a.Title)
		}
		return ts
	}

	assert.Len(t, titles(parentToken, ""), 4)
	assert.Equal(t, []string{"Fractions", "Nature walk"}, titles(parentToken, "?student_id="+bob.ID+"&ordering=title"))
	assert.Equal(t, []string{"Fractions", "Fractions"}, titles(parentToken, "?subject_id="+math.ID))
	assert.Equal(t, []string{"Book report"}, titles(parentToken, "?due_from=2024-03-05&due_before=2024-03-11"))
	assert.Equal(t, []string{"Book report", "Fractions", "Fractions"}, titles(parentToken, "?search=O&ordering=-due_date"))
	assert.Equal(t, []string{"Book report", "Fractions"}, titles(getToken(t, app, adaUser), "?ordering=title"), "students only see their own")
	assert.Empty(t, titles(parentToken, "?status=COMPLETED"))

	rec := app.do(http.MethodGet, "/api/assignments?due_from=03/05/2024", parentToken)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marshallObj(t, map[string]string{"due_from": "expected a YYYY-MM-DD date"}),
	}, rec)
}

func newUploadRequest(t *testing.T, token, filename string, content []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(importFileField, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/assignments/import", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func Test_assignmentApi_import(t *testing.T) {
	app := setup(t)
	testutil.CreateStudent(t, app.Repos.Students, app.fam.ID, "Ada", "")
	testutil.CreateSubject(t, app.Repos.Subjects, app.fam.ID, "Math")
	token := getToken(t, app, app.fam.Parent)

	upload := func(filename, content string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		app.srv.ServeHTTP(rec, newUploadRequest(t, token, filename, []byte(content)))
		return rec
	}

	rec := upload("week.csv", "Title,Student,Subject,Due Date\nFractions,ada,math,2024-03-04\nSpelling,Ada,,03/05/2024\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res ImportResponse
	decode(t, rec, &res)
	assert.Equal(t, 2, res.Imported)

	rec = upload("week.csv", "Title,Student\nFractions,Ada\nMystery,Zed\n,Ada\n")
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marshallObj(t, map[string]string{
			"row 3": `unknown student "Zed"`,
			"row 4": "title is required",
		}),
	}, rec)
	assert.Equal(t, 2, app.DB.Counts()["assignments"], "nothing was imported")

	rec = upload("week.txt", "Title,Student\nFractions,Ada\n")
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marshallObj(t, map[string]string{"file": "expected a .csv or .xlsx file"}),
	}, rec)

	rec = upload("week.csv", "Name,Kid\nFractions,Ada\n")
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marshallObj(t, map[string]string{"header": "missing required columns: title, student"}),
	}, rec)
}
