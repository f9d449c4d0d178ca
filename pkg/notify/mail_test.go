package notify

import (
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailAdapter_Send_BuildsExpectedMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := NewMailAdapter("smtp.example.com", 587, "user", "pass", "dcc@example.com")
	m.Transport = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := m.Send("dev@example.com", "build failed", "bucket unit failed")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "dcc@example.com", gotFrom)
	assert.Equal(t, []string{"dev@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: build failed")
	assert.Contains(t, string(gotMsg), "bucket unit failed")
}

func TestFailureMessage_IncludesBucketAndProject(t *testing.T) {
	msg := FailureMessage("demo", "unit", "http://ci.example.com/build/1")
	assert.Contains(t, msg, "demo")
	assert.Contains(t, msg, "unit")
	assert.Contains(t, msg, "http://ci.example.com/build/1")
}
