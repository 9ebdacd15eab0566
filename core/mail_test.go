package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeschool/core"
)

func TestEmailMessage_Render(t *testing.T) {
	conf := core.NewTestConfig()

	tests := []struct {
		name     string
		msg      core.EmailMessage
		wantText []string
		wantHTML bool
	}{
		{
			name:     "plain body",
			msg:      core.EmailMessage{BodyStr: "Hello"},
			wantText: []string{"Hello"},
		},
		{
			name: "notification",
			msg: core.EmailMessage{
				TemplateName: "notification",
				TemplateData: map[string]interface{}{"RecipientName": "Jane", "Message": "Ada completed Fractions", "AssignmentID": "a-1"},
			},
			wantText: []string{"Hi Jane,", "Ada completed Fractions", conf.FrontendBaseURL + "/assignments/a-1", conf.AppName},
			wantHTML: true,
		},
		{
			name: "password reset",
			msg: core.EmailMessage{
				TemplateName: "password_reset",
				TemplateData: map[string]interface{}{"RecipientName": "Jane", "UID": "dWlk", "Token": "tok"},
			},
			wantText: []string{"Hi Jane,", conf.FrontendBaseURL + "/password-reset/dWlk/tok"},
			wantHTML: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			require.NoError(t, msg.Render(conf))
			for _, want := range tt.wantText {
				assert.Contains(t, msg.TextContent, want)
			}
			assert.Equal(t, tt.wantHTML, msg.HTMLContent != "")
			assert.True(t, msg.HasContent())
		})
	}

	t.Run("unknown template", func(t *testing.T) {
		msg := core.EmailMessage{TemplateName: "lol"}
		assert.Error(t, msg.Render(conf))
	})
}
